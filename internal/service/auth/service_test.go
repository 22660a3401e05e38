package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/jwt"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAliceRefreshScenario(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	first := h.login(t, "alice", "phoneA")
	refresh1 := first.RefreshToken
	if refresh1 == "" || first.AccessToken == "" {
		t.Fatalf("expected tokens, got %+v", first.TokenPair)
	}

	second, err := h.svc.Refresh(ctx, refresh1, "phoneA")
	if err != nil {
		t.Fatalf("refresh with refresh1: %v", err)
	}
	refresh2 := second.RefreshToken
	if refresh2 == refresh1 {
		t.Fatalf("refresh must rotate the secret")
	}

	if _, err := h.svc.Refresh(ctx, refresh1, "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("expected reuse of refresh1 to fail, got %v", err)
	}

	third, err := h.svc.Refresh(ctx, refresh2, "phoneA")
	if err != nil {
		t.Fatalf("refresh with refresh2: %v", err)
	}

	c1, err := h.jwt.Verifier.Verify(first.AccessToken)
	if err != nil {
		t.Fatalf("verify access1: %v", err)
	}
	c3, err := h.jwt.Verifier.Verify(third.AccessToken)
	if err != nil {
		t.Fatalf("verify access3: %v", err)
	}
	if c1.ID == c3.ID {
		t.Fatalf("every issuance needs a fresh jti")
	}
	if c3.Username != "alice" || c3.UserID() != "id-alice" {
		t.Fatalf("unexpected claims %+v", c3)
	}

	if got := testutil.ToFloat64(h.metrics.RefreshReuse); got != 1 {
		t.Fatalf("expected one reuse detection, got %v", got)
	}
}

func TestRefreshRejectsWrongDeviceAndGarbage(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	resp := h.login(t, "alice", "phoneA")

	if _, err := h.svc.Refresh(ctx, resp.RefreshToken, "laptop"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("expected device mismatch to fail, got %v", err)
	}
	if _, err := h.svc.Refresh(ctx, "not-a-secret", "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("expected unknown secret to fail, got %v", err)
	}
	if _, err := h.svc.Refresh(ctx, "", "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("expected empty secret to fail, got %v", err)
	}
	// still usable after the failures above
	if _, err := h.svc.Refresh(ctx, resp.RefreshToken, "phoneA"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}

func TestLoginOverwritesDeviceSession(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	old := h.login(t, "alice", "phoneA")
	h.login(t, "alice", "phoneA")

	if _, err := h.svc.Refresh(ctx, old.RefreshToken, "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("a new login must invalidate the previous secret, got %v", err)
	}

	sessions, err := h.registry.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected a single session per device, got %d", len(sessions))
	}
}

func TestConcurrentRefreshExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	secret := h.login(t, "alice", "phoneA").RefreshToken

	const callers = 2
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.Refresh(ctx, secret, "phoneA")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, invalid int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, xerrors.ErrInvalidRefreshToken):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != 1 {
		t.Fatalf("expected one winner and one loser, got %d/%d", ok, invalid)
	}
}

func TestRevokeOneLeavesOtherDevices(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	phone := h.login(t, "alice", "phoneA")
	laptop := h.login(t, "alice", "laptop")
	claims := &jwt.Claims{Username: "alice"}

	if err := h.svc.Revoke(ctx, claims, "phoneA"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.svc.Refresh(ctx, phone.RefreshToken, "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("revoked device must fail, got %v", err)
	}
	if _, err := h.svc.Refresh(ctx, laptop.RefreshToken, "laptop"); err != nil {
		t.Fatalf("other device must survive: %v", err)
	}

	if err := h.svc.Revoke(ctx, claims, "phoneA"); !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("expected NotFound on second revoke, got %v", err)
	}
	if len(h.events.devices) != 1 || h.events.devices[0] != "alice/phoneA" {
		t.Fatalf("unexpected revoke events %v", h.events.devices)
	}
}

func TestRevokeAll(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	h.addUser(t, "bob", true)
	ctx := context.Background()

	phone := h.login(t, "alice", "phoneA")
	laptop := h.login(t, "alice", "laptop")
	bob := h.login(t, "bob", "phoneA")
	claims := &jwt.Claims{Username: "alice"}

	n, err := h.svc.RevokeAll(ctx, claims)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked, got %d %v", n, err)
	}
	for device, secret := range map[string]string{"phoneA": phone.RefreshToken, "laptop": laptop.RefreshToken} {
		if _, err := h.svc.Refresh(ctx, secret, device); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
			t.Fatalf("%s must fail after revoke-all, got %v", device, err)
		}
	}
	if _, err := h.svc.Refresh(ctx, bob.RefreshToken, "phoneA"); err != nil {
		t.Fatalf("other users are unaffected: %v", err)
	}

	if _, err := h.svc.RevokeAll(ctx, claims); !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("expected NotFound when nothing is left, got %v", err)
	}
}

func TestReuseEscalationRevokesDevice(t *testing.T) {
	h := newHarness(t, revokeOnReuse)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	refresh1 := h.login(t, "alice", "phoneA").RefreshToken
	second, err := h.svc.Refresh(ctx, refresh1, "phoneA")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := h.svc.Refresh(ctx, refresh1, "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("expected reuse to fail, got %v", err)
	}
	if _, err := h.svc.Refresh(ctx, second.RefreshToken, "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("reuse must have ended the session, got %v", err)
	}
}

func TestRolesReadOnEveryIssuance(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "alice", true)
	ctx := context.Background()

	resp := h.login(t, "alice", "phoneA")
	if len(resp.User.Roles) != 0 {
		t.Fatalf("expected no roles, got %v", resp.User.Roles)
	}

	h.store.AssignRole(ctx, u.ID, jwt.RoleAdmin)

	pair, err := h.svc.Refresh(ctx, resp.RefreshToken, "phoneA")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := h.jwt.Verifier.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !claims.IsAdmin() {
		t.Fatalf("new role must show up on the next token, got %v", claims.Roles)
	}
}

func TestRefreshRejectsSessionOfReplacedAccount(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "alice", true)
	ctx := context.Background()

	resp := h.login(t, "alice", "phoneA")

	// same username, registered after the session was created
	h.store.Delete(ctx, u.ID)
	replacement := *u
	replacement.ID = "id-alice-2"
	replacement.RegisteredAt = time.Now().Add(time.Minute)
	h.store.Create(ctx, &replacement)

	if _, err := h.svc.Refresh(ctx, resp.RefreshToken, "phoneA"); !errors.Is(err, xerrors.ErrInvalidRefreshToken) {
		t.Fatalf("expected stale session to fail, got %v", err)
	}
}

func TestRefreshRightAfterRegistration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// account creation and first login land in the same millisecond
	at := time.Now().UTC().Truncate(time.Millisecond).Add(456_789 * time.Nanosecond)
	clock := func() time.Time { return at }
	h.svc.now = clock
	h.coordinator.now = clock

	info, err := h.svc.Register(ctx, &auth.RegisterRequest{Email: "erin@example.com", Password: testPassword, Name: "Erin"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token := tokenIn(t, h.mail.Last(t, "erin@example.com"))
	if err := h.svc.ConfirmEmail(ctx, &auth.ConfirmEmailRequest{UserID: info.ID, Token: token}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	resp := h.login(t, "erin@example.com", "phoneA")
	pair, err := h.svc.Refresh(ctx, resp.RefreshToken, "phoneA")
	if err != nil {
		t.Fatalf("refresh after registration: %v", err)
	}
	if pair.RefreshToken == resp.RefreshToken {
		t.Fatal("refresh must rotate the secret")
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice@example.com", true)
	h.addUser(t, "carol@example.com", false)
	ctx := context.Background()

	tests := []struct {
		name string
		req  auth.LoginRequest
		want error
	}{
		{"wrong password", auth.LoginRequest{Username: "alice@example.com", Password: "nope", DeviceID: "d"}, xerrors.ErrInvalidCredentials},
		{"unknown user", auth.LoginRequest{Username: "mallory@example.com", Password: testPassword, DeviceID: "d"}, xerrors.ErrInvalidCredentials},
		{"unconfirmed", auth.LoginRequest{Username: "carol@example.com", Password: testPassword, DeviceID: "d"}, xerrors.ErrEmailNotConfirmed},
		{"no device", auth.LoginRequest{Username: "alice@example.com", Password: testPassword}, xerrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.IPAddress = "10.0.0.1"
			if _, err := h.svc.Login(ctx, &req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	req := &auth.LoginRequest{Username: "alice", Password: "wrong", DeviceID: "d", IPAddress: "10.0.0.9"}
	for i := 0; i < 5; i++ {
		if _, err := h.svc.Login(ctx, req); !errors.Is(err, xerrors.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	req.Password = testPassword
	if _, err := h.svc.Login(ctx, req); !errors.Is(err, xerrors.ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestSessionsHideSecrets(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", true)
	ctx := context.Background()

	h.login(t, "alice", "phoneA")
	h.login(t, "alice", "laptop")

	list, err := h.svc.Sessions(ctx, &jwt.Claims{Username: "alice"}, "laptop")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	current := 0
	for _, s := range list {
		if s.Current {
			current++
			if s.DeviceID != "laptop" {
				t.Fatalf("wrong current device %s", s.DeviceID)
			}
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current session")
	}
}

func TestEnsureAdminExists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.svc.EnsureAdminExists(ctx, "admin@lovi.test", "admin-password", "Admin"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if err := h.svc.EnsureAdminExists(ctx, "admin@lovi.test", "admin-password", "Admin"); err != nil {
		t.Fatalf("ensure admin is idempotent: %v", err)
	}

	u, err := h.store.FindByEmail(ctx, "admin@lovi.test")
	if err != nil {
		t.Fatalf("admin not created: %v", err)
	}
	roles, _ := h.store.GetRoles(ctx, u.ID)
	if len(roles) != 1 || roles[0] != jwt.RoleAdmin {
		t.Fatalf("expected Admin role, got %v", roles)
	}
	if !u.EmailConfirmed {
		t.Fatalf("admin must be confirmed")
	}

	if err := h.svc.EnsureAdminExists(ctx, "", "", ""); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
