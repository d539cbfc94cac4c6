package expression

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/compliance"
	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

const asset domain.AssetID = "ART"

type staticJurisdictions map[domain.Address]domain.Jurisdiction

func (s staticJurisdictions) Resolve(_ context.Context, holder domain.Address) (domain.Jurisdiction, bool, error) {
	code, ok := s[holder]
	return code, ok, nil
}

func setup(t *testing.T) (*Module, context.Context) {
	t.Helper()
	store := kv.NewMemory()
	guard := admin.NewGuard(store, string(ID), nil)
	require.NoError(t, guard.Initialize(context.Background(), "GADMIN"))
	m, err := New(store, guard, staticJurisdictions{"GUS": "US", "GDE": "DE"}, nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithCaller(requestcontext.WithTime(context.Background(), now), "GADMIN")
	return m, ctx
}

func check(t *testing.T, m *Module, ctx context.Context, from, to domain.Address, amount domain.Amount) compliance.Verdict {
	t.Helper()
	v, err := m.Check(ctx, compliance.TransferContext{Asset: asset, From: from, To: to, Amount: amount, Kind: compliance.KindTransfer})
	require.NoError(t, err)
	return v
}

func TestNoExpressionPasses(t *testing.T) {
	m, ctx := setup(t)
	assert.True(t, check(t, m, ctx, "GUS", "GDE", 1).Allowed)
}

func TestExpressionGatesTransfers(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		from    domain.Address
		to      domain.Address
		amount  domain.Amount
		allowed bool
	}{
		{name: "amount cap", expr: "amount <= 100", from: "GUS", to: "GDE", amount: 100, allowed: true},
		{name: "amount cap exceeded", expr: "amount <= 100", from: "GUS", to: "GDE", amount: 101},
		{name: "same jurisdiction", expr: "from_jurisdiction == to_jurisdiction", from: "GUS", to: "GDE"},
		{name: "eu recipients", expr: `to_jurisdiction in ["DE", "FR"]`, from: "GUS", to: "GDE", allowed: true},
		{name: "unknown jurisdiction is empty", expr: `to_jurisdiction == ""`, from: "GUS", to: "GNOBODY", allowed: true},
		{name: "time window", expr: `now >= timestamp("2026-01-01T00:00:00Z")`, from: "GUS", to: "GDE", allowed: true},
		{name: "runtime error fails closed", expr: "amount / (amount - amount) > 0", from: "GUS", to: "GDE", amount: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ctx := setup(t)
			require.NoError(t, m.SetExpression(ctx, asset, tt.expr))
			v := check(t, m, ctx, tt.from, tt.to, tt.amount)
			assert.Equal(t, tt.allowed, v.Allowed)
			if !tt.allowed {
				assert.Equal(t, ID, v.Module)
			}
		})
	}
}

func TestSetExpressionRejectsInvalid(t *testing.T) {
	m, ctx := setup(t)

	for _, expr := range []string{"", "amount +", "amount + 1", "unknown_var == 1"} {
		err := m.SetExpression(ctx, asset, expr)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), expr)
	}

	err := m.SetExpression(ctx, asset, "amount > 0 && "+strings.Repeat("amount > 0 && ", 400)+"true")
	assert.Error(t, err)

	_, ok, err := m.Expression(ctx, asset)
	require.NoError(t, err)
	assert.False(t, ok, "nothing is stored for rejected expressions")
}

func TestSetExpressionRequiresAdmin(t *testing.T) {
	m, ctx := setup(t)
	err := m.SetExpression(requestcontext.WithCaller(ctx, "GMALLORY"), asset, "true")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestRemoveExpression(t *testing.T) {
	m, ctx := setup(t)
	require.NoError(t, m.SetExpression(ctx, asset, "false"))
	assert.False(t, check(t, m, ctx, "GUS", "GDE", 1).Allowed)

	require.NoError(t, m.RemoveExpression(ctx, asset))
	assert.True(t, check(t, m, ctx, "GUS", "GDE", 1).Allowed)
}

func TestProgramsAreCached(t *testing.T) {
	m, _ := setup(t)
	first, err := m.programs.get("amount > 1")
	require.NoError(t, err)
	second, err := m.programs.get("amount > 1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
