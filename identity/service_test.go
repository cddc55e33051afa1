package identity

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/mcp-protocol/authorization"
)

func Test_Caller_noToken(t *testing.T) {
	svc := New()
	caller, err := svc.Caller(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller != "anonymous" {
		t.Fatalf("expected default caller, got %q", caller)
	}
}

func Test_Caller_fromClaims(t *testing.T) {
	svc := New()
	svc.Parse = func(string) (jwt.MapClaims, error) {
		return jwt.MapClaims{"email": "alice@example.com"}, nil
	}
	ctx := context.WithValue(context.Background(), authorization.TokenKey, "opaque")
	caller, err := svc.Caller(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller != "alice@example.com" {
		t.Fatalf("expected email claim, got %q", caller)
	}
}

func Test_Caller_subFallback(t *testing.T) {
	svc := New()
	svc.Parse = func(string) (jwt.MapClaims, error) {
		return jwt.MapClaims{"sub": "user-42"}, nil
	}
	ctx := context.WithValue(context.Background(), authorization.TokenKey, "opaque")
	caller, _ := svc.Caller(ctx)
	if caller != "user-42" {
		t.Fatalf("expected sub claim, got %q", caller)
	}
}
