package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/requestcontext"
)

// MockJWTValidator is a testify mock for JWTValidator
type MockJWTValidator struct {
	mock.Mock
}

func (m *MockJWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*Claims), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockHandler captures whether it was called and the context it saw.
type mockHandler struct {
	called  bool
	context context.Context
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.called = true
	m.context = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareTestSuite struct {
	suite.Suite
	validator   *MockJWTValidator
	logger      *slog.Logger
	nextHandler *mockHandler
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareTestSuite))
}

func (s *AuthMiddlewareTestSuite) SetupTest() {
	s.validator = new(MockJWTValidator)
	s.logger = slog.Default()
	s.nextHandler = &mockHandler{}
}

func (s *AuthMiddlewareTestSuite) TearDownTest() {
	s.validator.AssertExpectations(s.T())
}

func (s *AuthMiddlewareTestSuite) serve(mw func(http.Handler) http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	mw(s.nextHandler).ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareTestSuite) TestValidTokenSetsCaller() {
	s.validator.On("ValidateToken", "valid-token").Return(&Claims{Principal: "GISSUER", JTI: "jti-1"}, nil)

	w := s.serve(Authenticate(s.validator, s.logger), "Bearer valid-token")

	s.Require().True(s.nextHandler.called)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(domain.Address("GISSUER"), requestcontext.Caller(s.nextHandler.context))
}

func (s *AuthMiddlewareTestSuite) TestAnonymousRequests() {
	s.Run("authenticate passes anonymous requests through", func() {
		w := s.serve(Authenticate(s.validator, s.logger), "")
		s.True(s.nextHandler.called)
		s.Equal(http.StatusOK, w.Code)
		s.True(requestcontext.Caller(s.nextHandler.context).IsNil())
	})

	s.Run("require auth rejects them", func() {
		s.nextHandler = &mockHandler{}
		w := s.serve(RequireAuth(s.validator, s.logger), "")
		s.False(s.nextHandler.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *AuthMiddlewareTestSuite) TestRejectedTokens() {
	s.validator.On("ValidateToken", "expired").Return(nil, errors.New("token expired"))
	s.validator.On("ValidateToken", "no-subject").Return(&Claims{}, nil)

	for _, header := range []string{"Basic abc", "Bearer expired", "Bearer no-subject"} {
		s.nextHandler = &mockHandler{}
		w := s.serve(Authenticate(s.validator, s.logger), header)
		s.False(s.nextHandler.called, header)
		s.Equal(http.StatusUnauthorized, w.Code, header)
		s.Contains(w.Body.String(), `"error":"unauthorized"`)
	}
}
