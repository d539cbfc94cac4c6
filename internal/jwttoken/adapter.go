package jwttoken

import (
	"gatekeeper/pkg/platform/middleware/auth"
)

// Adapter exposes JWTService as the auth middleware's validator.
type Adapter struct {
	service *JWTService
}

func NewAdapter(service *JWTService) *Adapter {
	return &Adapter{service: service}
}

func (a *Adapter) ValidateToken(tokenString string) (*auth.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	principal, err := claims.Principal()
	if err != nil {
		return nil, err
	}
	return &auth.Claims{Principal: principal, JTI: claims.ID}, nil
}
