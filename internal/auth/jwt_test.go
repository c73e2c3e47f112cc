package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef-test"

func TestIssuer_RoundTrip(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	issuer, err := NewIssuer(testSecret, time.Hour, clk)
	if err != nil {
		t.Fatal(err)
	}

	token, err := issuer.GenerateClientToken("phone")
	if err != nil {
		t.Fatalf("GenerateClientToken: %v", err)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "phone" || claims.Role != RoleClient {
		t.Errorf("Unexpected claims %+v", claims)
	}

	clk.Add(2 * time.Hour)
	if _, err := issuer.ValidateToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected expired token, got %v", err)
	}
}

func TestIssuer_RejectsForeignTokens(t *testing.T) {
	issuer, _ := NewIssuer(testSecret, 0, nil)
	other, _ := NewIssuer("another-secret-of-length", 0, nil)

	token, _ := other.GenerateClientToken("phone")
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{Role: RoleClient})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := issuer.ValidateToken(unsigned); err == nil {
		t.Error("Expected unsigned token to be rejected")
	}

	if _, err := issuer.ValidateToken("garbage"); err == nil {
		t.Error("Expected garbage to be rejected")
	}
}

func TestNewIssuer_Validation(t *testing.T) {
	if _, err := NewIssuer("short", 0, nil); err == nil {
		t.Error("Expected short secret to be rejected")
	}
	issuer, _ := NewIssuer(testSecret, 0, nil)
	if _, err := issuer.GenerateClientToken(""); err == nil {
		t.Error("Expected empty subject to be rejected")
	}
}
