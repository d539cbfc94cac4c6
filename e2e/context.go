//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatekeeper/internal/jwttoken"
	"gatekeeper/pkg/domain"
)

const (
	// Defaults match a server started with ENVIRONMENT=local.
	devSigningKey = "dev-secret-key-change-in-production"
	devAdminToken = "demo-admin-token"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	AdminToken       string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	// Suffix keeps addresses and assets unique per scenario so scenarios can
	// share one long-running server.
	Suffix string
	Asset  string

	jwt    *jwttoken.JWTService
	tokens map[string]string
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	adminToken := os.Getenv("ADMIN_API_TOKEN")
	if adminToken == "" {
		adminToken = devAdminToken
	}
	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if signingKey == "" {
		signingKey = devSigningKey
	}

	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return &TestContext{
		BaseURL:    baseURL,
		AdminToken: adminToken,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Suffix:     suffix,
		Asset:      "E2E" + suffix,
		jwt:        jwttoken.NewJWTService(signingKey, "gatekeeper", "gatekeeper-api", 15*time.Minute),
		tokens:     map[string]string{},
	}
}

// Address maps a scenario-local name to a unique principal address. Names
// starting with "G" are taken literally.
func (tc *TestContext) Address(name string) string {
	if strings.HasPrefix(name, "G") {
		return name
	}
	return "G" + strings.ToUpper(name) + tc.Suffix
}

func (tc *TestContext) GetAsset() string { return tc.Asset }

// As returns the Authorization header for the principal behind name.
func (tc *TestContext) As(name string) (map[string]string, error) {
	addr := tc.Address(name)
	token, ok := tc.tokens[addr]
	if !ok {
		var err error
		token, _, err = tc.jwt.GeneratePrincipalToken(context.Background(), domain.Address(addr))
		if err != nil {
			return nil, fmt.Errorf("failed to sign token for %s: %w", addr, err)
		}
		tc.tokens[addr] = token
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// Operator returns the headers accepted by the operator routes.
func (tc *TestContext) Operator() map[string]string {
	return map[string]string{"X-Admin-Token": tc.AdminToken, "X-Admin-Actor-ID": "e2e"}
}

// Do makes a request and stores the response
func (tc *TestContext) Do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}
	return false
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}
