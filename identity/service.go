package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/mcp-protocol/authorization"
)

// Service derives a caller label from a JWT carried in context by the MCP
// auth middleware. The label tags tool-call logs and the diagnostic auth
// context; it falls back to DefaultCaller when no token is present or
// extraction fails.
type Service struct {
	// DefaultCaller is returned when no token is present or extraction fails.
	DefaultCaller string
	// Parse turns a token string into jwt.MapClaims (unverified parse by default).
	Parse func(token string) (jwt.MapClaims, error)
	// Extract returns the caller label from claims; bool indicates success.
	Extract func(jwt.MapClaims) (string, bool)
}

// Caller extracts the email/subject of the authenticated MCP caller.
func (s *Service) Caller(ctx context.Context) (string, error) {
	if s == nil {
		return "anonymous", nil
	}
	tokenValue := ctx.Value(authorization.TokenKey)
	if tokenValue == nil {
		return s.DefaultCaller, nil
	}
	var tokenString string
	switch tv := tokenValue.(type) {
	case string:
		tokenString = tv
	case *authorization.Token:
		tokenString = tv.Token
	default:
		return "", fmt.Errorf("unsupported token type %T", tokenValue)
	}
	if s.Parse != nil && s.Extract != nil {
		if claims, err := s.Parse(tokenString); err == nil {
			if caller, ok := s.Extract(claims); ok && caller != "" {
				return caller, nil
			}
		}
	}
	return s.DefaultCaller, nil
}

// New returns a Service that extracts "email" or "sub" without verification.
func New() *Service {
	return &Service{
		DefaultCaller: "anonymous",
		Parse: func(tokenString string) (jwt.MapClaims, error) {
			var claimMap jwt.MapClaims
			_, _, err := new(jwt.Parser).ParseUnverified(tokenString, &claimMap)
			return claimMap, err
		},
		Extract: func(mc jwt.MapClaims) (string, bool) {
			if email, _ := mc["email"].(string); email != "" {
				return email, true
			}
			if sub, _ := mc["sub"].(string); sub != "" {
				return sub, true
			}
			return "", false
		},
	}
}
