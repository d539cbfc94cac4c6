package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatekeeper/pkg/domain-errors"
)

func TestGenerateIsUnique(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, TokenPrefix))
	assert.Len(t, a, len(TokenPrefix)+43)
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("operator-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	require.NoError(t, Verify("operator-token", hash))

	err = Verify("wrong", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = Verify("operator-token", "not-a-hash")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestHashRejectsInvalidInput(t *testing.T) {
	_, err := Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = Hash(strings.Repeat("x", 73))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateHash(t *testing.T) {
	hash, err := Hash("gk_admin_example")
	require.NoError(t, err)
	require.NoError(t, ValidateHash(hash))

	err = ValidateHash("gk_admin_example")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
