package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"lovi-service/internal/domain/auth"
	"lovi-service/internal/pkg/actiontoken"
	"lovi-service/internal/pkg/jwt"
	"lovi-service/internal/pkg/security"
	"lovi-service/internal/pkg/session"
	"lovi-service/internal/service/auth/authtest"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func tokenIn(t *testing.T, m authtest.Mail) string {
	t.Helper()
	return authtest.TokenIn(t, m)
}

// ---------- session events ----------

type recordingEvents struct {
	mu      sync.Mutex
	devices []string
	users   []string
}

func (e *recordingEvents) SessionRevoked(username, deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices = append(e.devices, username+"/"+deviceID)
}

func (e *recordingEvents) AllSessionsRevoked(username string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users = append(e.users, username)
}

// ---------- harness ----------

const (
	testSigningKey = "0123456789abcdef0123456789abcdef"
	testActionKey  = "fedcba9876543210fedcba9876543210"
	testPassword   = "correct-horse-battery"
)

type harness struct {
	svc         *AuthService
	store       *authtest.Store
	mail        *authtest.Notifier
	events      *recordingEvents
	registry    *session.RedisRegistry
	coordinator *RefreshCoordinator
	jwt         *jwt.Manager
	metrics     *Metrics
	hasher      *security.Hasher
	redis       *miniredis.Miniredis
}

type harnessOption func(*CoordinatorConfig)

func revokeOnReuse(c *CoordinatorConfig) { c.RevokeOnReuse = true }

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	store := authtest.NewStore()
	registry := session.NewRedisRegistry(client)
	metrics := NewMetrics(prometheus.NewRegistry())

	manager, err := jwt.LoadAndBuild(jwt.Config{
		SigningKey: testSigningKey,
		Issuer:     "lovi-api",
		Audience:   "lovi-clients",
		TTL:        15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}

	codec, err := actiontoken.NewCodec(actiontoken.Config{
		Secret:          testActionKey,
		EmailConfirmTTL: 24 * time.Hour,
		PasswordReset:   time.Hour,
		EmailChangeTTL:  24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	cfg := CoordinatorConfig{RefreshTTL: 7 * 24 * time.Hour}
	for _, opt := range opts {
		opt(&cfg)
	}

	events := &recordingEvents{}
	notifier := &authtest.Notifier{}
	mail := NewEmailHelper(notifier, logger, "https://lovi.test").Synchronous()

	coordinator := NewRefreshCoordinator(store, registry, NewClaimsAssembler(store), manager.Issuer, cfg, metrics, logger)
	hasher := security.NewHasher(4)

	svc := NewAuthService(
		store,
		coordinator,
		NewRevocationManager(registry, events, metrics, logger),
		NewActionTokenService(codec, store),
		NewExternalIdentityLinker(NewProviderClient(ProviderEndpoints{}, time.Second), store, logger),
		hasher,
		session.NewRateLimiter(client),
		mail,
		metrics,
		logger,
	)

	return &harness{
		svc:         svc,
		store:       store,
		mail:        notifier,
		events:      events,
		registry:    registry,
		coordinator: coordinator,
		jwt:         manager,
		metrics:     metrics,
		hasher:      hasher,
		redis:       mr,
	}
}

// addUser stores a user directly; confirmed controls the email flag.
func (h *harness) addUser(t *testing.T, email string, confirmed bool) *auth.User {
	t.Helper()
	hash, err := h.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	stamp, _ := security.NewStamp()
	u := &auth.User{
		ID:             "id-" + email,
		Username:       email,
		Email:          email,
		Name:           strings.Split(email, "@")[0],
		EmailConfirmed: confirmed,
		PasswordHash:   hash,
		SecurityStamp:  stamp,
		RegisteredAt:   time.Now().Add(-time.Hour).UTC(),
	}
	if err := h.store.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (h *harness) login(t *testing.T, username, deviceID string) *auth.LoginResponse {
	t.Helper()
	resp, err := h.svc.Login(context.Background(), &auth.LoginRequest{
		Username:  username,
		Password:  testPassword,
		DeviceID:  deviceID,
		IPAddress: "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("login %s on %s: %v", username, deviceID, err)
	}
	return resp
}
