package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	xerrors "lovi-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, now *time.Time) *Manager {
	t.Helper()
	m, err := LoadAndBuild(Config{
		SigningKey: testKey,
		Issuer:     "lovi-api",
		Audience:   "lovi-clients",
		TTL:        15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	return m.WithClock(func() time.Time { return *now })
}

func aliceClaims() *Claims {
	return &Claims{
		Username: "alice",
		Roles:    []string{"Admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
			ID:      "jti-1",
		},
	}
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)

	token, exp, err := m.Issuer.Issue(aliceClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.Verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID() != "user-1" || claims.Username != "alice" || claims.ID != "jti-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.IsAdmin() {
		t.Fatalf("expected admin role")
	}
}

func TestIssueDoesNotMutateInput(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	in := aliceClaims()
	in.ID = ""
	if _, _, err := m.Issuer.Issue(in); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if in.ID != "" || in.ExpiresAt != nil || in.Issuer != "" {
		t.Fatalf("input claims were modified: %+v", in)
	}
}

func TestIssueFillsMissingJTI(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	c := aliceClaims()
	c.ID = ""
	token, _, err := m.Issuer.Issue(c)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ID == "" {
		t.Fatalf("expected generated jti")
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)

	token, _, err := m.Issuer.Issue(aliceClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(15*time.Minute + time.Second)
	_, err = m.Verifier.Verify(token)
	if KindOf(err) != KindExpired {
		t.Fatalf("expected expired, got %v", err)
	}
	if !errors.Is(err, xerrors.ErrInvalidToken) || !errors.Is(err, xerrors.ErrExpiredToken) {
		t.Fatalf("expected invalid and expired sentinels, got %v", err)
	}
}

func TestVerifyRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)
	token, _, err := m.Issuer.Issue(aliceClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewIssuer([]byte(strings.Repeat("x", 32)), "lovi-api", "lovi-clients", time.Minute)
	other.now = func() time.Time { return now }
	forged, _, err := other.Issue(aliceClaims())
	if err != nil {
		t.Fatalf("issue forged: %v", err)
	}

	wrongAud := NewIssuer([]byte(testKey), "lovi-api", "someone-else", time.Minute)
	wrongAud.now = func() time.Time { return now }
	badAud, _, _ := wrongAud.Issue(aliceClaims())

	wrongIss := NewIssuer([]byte(testKey), "intruder", "lovi-clients", time.Minute)
	wrongIss.now = func() time.Time { return now }
	badIss, _, _ := wrongIss.Issue(aliceClaims())

	none := jwt.NewWithClaims(jwt.SigningMethodNone, aliceClaims())
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	cases := []struct {
		name  string
		token string
		kind  Kind
	}{
		{"malformed", "not-a-token", KindMalformed},
		{"wrong key", forged, KindSignature},
		{"tampered", token[:len(token)-2] + "xx", KindSignature},
		{"wrong audience", badAud, KindClaims},
		{"wrong issuer", badIss, KindClaims},
		{"alg none", unsigned, KindSignature},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Verifier.Verify(tc.token)
			if err == nil {
				t.Fatalf("expected error")
			}
			if KindOf(err) != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, KindOf(err), err)
			}
			if !errors.Is(err, xerrors.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken")
			}
			if errors.Is(err, xerrors.ErrExpiredToken) {
				t.Fatalf("did not expect ErrExpiredToken")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := LoadAndBuild(Config{SigningKey: "short", Issuer: "a", Audience: "b", TTL: time.Minute}); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
	if _, err := LoadAndBuild(Config{SigningKey: testKey, Issuer: "a", Audience: "b"}); err == nil {
		t.Fatalf("expected zero ttl to be rejected")
	}
}
