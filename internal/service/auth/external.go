// internal/service/auth/external.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"
	"lovi-service/internal/pkg/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxProviderBody caps how much of a userinfo response is read.
const maxProviderBody = 1 << 20

type ProviderEndpoints struct {
	GoogleUserInfoURL string
	SpotifyAPIURL     string
	FacebookGraphURL  string
	InstagramGraphURL string
}

// ProviderClient asks a provider's userinfo endpoint who holds an access token.
type ProviderClient struct {
	http      *http.Client
	endpoints ProviderEndpoints
}

func NewProviderClient(endpoints ProviderEndpoints, timeout time.Duration) *ProviderClient {
	return &ProviderClient{
		http:      &http.Client{Timeout: timeout},
		endpoints: endpoints,
	}
}

// Exchange maps the provider's answer onto an ExternalIdentity. A provider
// that cannot vouch for an email yields ErrEmailRequired.
func (p *ProviderClient) Exchange(ctx context.Context, provider, accessToken string) (*auth.ExternalIdentity, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if accessToken == "" {
		return nil, xerrors.Validation("access token is required")
	}

	var (
		ident *auth.ExternalIdentity
		err   error
	)
	switch provider {
	case auth.ProviderGoogle:
		ident, err = p.google(ctx, accessToken)
	case auth.ProviderSpotify:
		ident, err = p.spotify(ctx, accessToken)
	case auth.ProviderFacebook:
		ident, err = p.facebook(ctx, accessToken)
	case auth.ProviderInstagram:
		ident, err = p.instagram(ctx, accessToken)
	default:
		return nil, fmt.Errorf("%w: %w", xerrors.ErrValidation, xerrors.ErrUnsupportedProvider)
	}
	if err != nil {
		return nil, err
	}

	ident.Provider = provider
	if ident.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: no provider user id", xerrors.ErrInvalidProviderToken)
	}
	if ident.Email == "" {
		return nil, xerrors.ErrEmailRequired
	}
	return ident, nil
}

func (p *ProviderClient) google(ctx context.Context, token string) (*auth.ExternalIdentity, error) {
	var body struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := p.get(ctx, p.endpoints.GoogleUserInfoURL, token, &body); err != nil {
		return nil, err
	}
	return &auth.ExternalIdentity{ProviderUserID: body.Sub, Email: body.Email, DisplayName: body.Name}, nil
}

func (p *ProviderClient) spotify(ctx context.Context, token string) (*auth.ExternalIdentity, error) {
	var body struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
	if err := p.get(ctx, p.endpoints.SpotifyAPIURL, token, &body); err != nil {
		return nil, err
	}
	return &auth.ExternalIdentity{ProviderUserID: body.ID, Email: body.Email, DisplayName: body.DisplayName}, nil
}

func (p *ProviderClient) facebook(ctx context.Context, token string) (*auth.ExternalIdentity, error) {
	var body struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	target := withQuery(p.endpoints.FacebookGraphURL, url.Values{
		"fields":       {"id,name,email"},
		"access_token": {token},
	})
	if err := p.get(ctx, target, "", &body); err != nil {
		return nil, err
	}
	return &auth.ExternalIdentity{ProviderUserID: body.ID, Email: body.Email, DisplayName: body.Name}, nil
}

// instagram validates the token but never has an email to offer.
func (p *ProviderClient) instagram(ctx context.Context, token string) (*auth.ExternalIdentity, error) {
	var body struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	target := withQuery(p.endpoints.InstagramGraphURL, url.Values{
		"fields":       {"id,username"},
		"access_token": {token},
	})
	if err := p.get(ctx, target, "", &body); err != nil {
		return nil, err
	}
	return nil, xerrors.ErrEmailRequired
}

// get issues the request and decodes a 2xx JSON body into out. 4xx means
// the token was rejected; transport failures and 5xx mean the provider is
// unavailable.
func (p *ProviderClient) get(ctx context.Context, target, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrProviderUnavailable, redact(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", xerrors.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", xerrors.ErrInvalidProviderToken, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed userinfo: %v", xerrors.ErrProviderUnavailable, err)
	}
	return nil
}

func withQuery(base string, q url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// redact drops the request URL from transport errors, since facebook and
// instagram carry the access token in the query string.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

// ExternalIdentityLinker turns a verified external identity into a local user.
type ExternalIdentityLinker struct {
	client *ProviderClient
	store  CredentialStore
	now    func() time.Time
	logger *zap.Logger
}

func NewExternalIdentityLinker(client *ProviderClient, store CredentialStore, logger *zap.Logger) *ExternalIdentityLinker {
	return &ExternalIdentityLinker{client: client, store: store, now: time.Now, logger: logger}
}

func (l *ExternalIdentityLinker) Exchange(ctx context.Context, provider, accessToken string) (*auth.ExternalIdentity, error) {
	return l.client.Exchange(ctx, provider, accessToken)
}

// LinkOrCreate finds the user by email or creates one with a confirmed
// email and no password, then links the provider login to it.
func (l *ExternalIdentityLinker) LinkOrCreate(ctx context.Context, ident *auth.ExternalIdentity) (*auth.User, error) {
	stamp, err := security.NewStamp()
	if err != nil {
		return nil, err
	}

	candidate := &auth.User{
		ID:             uuid.NewString(),
		Username:       ident.Email,
		Email:          ident.Email,
		Name:           ident.DisplayName,
		EmailConfirmed: true,
		SecurityStamp:  stamp,
		RegisteredAt:   l.now().UTC(),
	}

	user, created, err := l.store.LinkOrCreate(ctx, *ident, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		l.logger.Info("user created from external login",
			zap.String("user_id", user.ID),
			zap.String("provider", ident.Provider),
		)
	}
	return user, nil
}
