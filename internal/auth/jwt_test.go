package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, exp, err := Issue("7", "admin", "Max Mustermann", "zeiterfassung", "test-key", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry %v is not in the future", exp)
	}

	claims, err := Parse(token, "test-key", "zeiterfassung")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "7" || claims.Role != "admin" || claims.Name != "Max Mustermann" {
		t.Fatalf("claims = %+v, want subject 7 role admin", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue("7", "user", "Max Mustermann", "zeiterfassung", "test-key", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(token, "other-key", "zeiterfassung"); err == nil {
		t.Fatal("token signed with a different key must be rejected")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	token, _, err := Issue("7", "user", "Max Mustermann", "someone-else", "test-key", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(token, "test-key", "zeiterfassung"); err == nil {
		t.Fatal("issuer mismatch must be rejected")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Issue("7", "user", "Max Mustermann", "zeiterfassung", "test-key", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(token, "test-key", "zeiterfassung"); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestCanActFor(t *testing.T) {
	cases := []struct {
		name    string
		claims  Claims
		subject string
		want    bool
	}{
		{"admin for anyone", Claims{Subject: "1", Role: "admin"}, "7", true},
		{"user for self", Claims{Subject: "7", Role: "user"}, "7", true},
		{"user for other", Claims{Subject: "7", Role: "user"}, "1", false},
		{"empty claims", Claims{}, "1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanActFor(tc.claims, tc.subject); got != tc.want {
				t.Fatalf("CanActFor(%+v, %q) = %v, want %v", tc.claims, tc.subject, got, tc.want)
			}
		})
	}
}
