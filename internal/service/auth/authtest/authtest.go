// Package authtest provides in-memory stand-ins for the auth service's
// store and notifier.
package authtest

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"lovi-service/internal/domain/auth"
	xerrors "lovi-service/internal/pkg/errors"
)

// Store is an in-memory CredentialStore with the same stamp and
// uniqueness rules as the postgres repository.
type Store struct {
	mu     sync.Mutex
	users  map[string]*auth.User
	roles  map[string][]string
	logins map[string]auth.ExternalLogin // keyed by provider|providerUserID
}

func NewStore() *Store {
	return &Store{
		users:  map[string]*auth.User{},
		roles:  map[string][]string{},
		logins: map[string]auth.ExternalLogin{},
	}
}

func (s *Store) findBy(match func(*auth.User) bool) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *Store) FindByID(_ context.Context, id string) (*auth.User, error) {
	return s.findBy(func(u *auth.User) bool { return u.ID == id })
}

func (s *Store) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	return s.findBy(func(u *auth.User) bool { return strings.EqualFold(u.Username, username) })
}

func (s *Store) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	return s.findBy(func(u *auth.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Store) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(u)
}

func (s *Store) createLocked(u *auth.User) error {
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) || strings.EqualFold(existing.Username, u.Username) {
			return xerrors.ErrDuplicateEntry
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return xerrors.ErrNotFound
	}
	delete(s.users, id)
	delete(s.roles, id)
	for key, l := range s.logins {
		if l.UserID == id {
			delete(s.logins, key)
		}
	}
	return nil
}

func (s *Store) GetRoles(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.roles[userID]...), nil
}

func (s *Store) AssignRole(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles[userID] {
		if r == role {
			return nil
		}
	}
	s.roles[userID] = append(s.roles[userID], role)
	return nil
}

func (s *Store) RemoveRole(_ context.Context, userID, role string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := s.roles[userID]
	for i, r := range roles {
		if r == role {
			s.roles[userID] = append(roles[:i:i], roles[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) update(id string, fn func(*auth.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	return fn(u)
}

func (s *Store) UpdateLoggedInAt(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *auth.User) error {
		u.LoggedInAt.Time, u.LoggedInAt.Valid = at, true
		return nil
	})
}

func (s *Store) UpdateName(_ context.Context, id, name string) error {
	return s.update(id, func(u *auth.User) error {
		u.Name = name
		return nil
	})
}

func (s *Store) ConfirmEmail(_ context.Context, id string) error {
	return s.update(id, func(u *auth.User) error {
		u.EmailConfirmed = true
		return nil
	})
}

func (s *Store) UpdatePassword(_ context.Context, id, hash, oldStamp, newStamp string) error {
	return s.update(id, func(u *auth.User) error {
		if u.SecurityStamp != oldStamp {
			return xerrors.ErrConflict
		}
		u.PasswordHash, u.SecurityStamp = hash, newStamp
		return nil
	})
}

func (s *Store) UpdateEmail(_ context.Context, id, email, oldStamp, newStamp string) error {
	s.mu.Lock()
	for _, other := range s.users {
		if other.ID != id && strings.EqualFold(other.Email, email) {
			s.mu.Unlock()
			return xerrors.ErrDuplicateEntry
		}
	}
	s.mu.Unlock()

	return s.update(id, func(u *auth.User) error {
		if u.SecurityStamp != oldStamp {
			return xerrors.ErrConflict
		}
		u.Email, u.Username, u.EmailConfirmed, u.SecurityStamp = email, email, true, newStamp
		return nil
	})
}

func (s *Store) RotateSecurityStamp(_ context.Context, id, oldStamp, newStamp string) error {
	return s.update(id, func(u *auth.User) error {
		if u.SecurityStamp != oldStamp {
			return xerrors.ErrConflict
		}
		u.SecurityStamp = newStamp
		return nil
	})
}

func (s *Store) LinkOrCreate(_ context.Context, ident auth.ExternalIdentity, candidate *auth.User) (*auth.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user *auth.User
	for _, u := range s.users {
		if strings.EqualFold(u.Email, ident.Email) {
			user = u
		}
	}
	key := ident.Provider + "|" + ident.ProviderUserID
	if linked, ok := s.logins[key]; ok && (user == nil || linked.UserID != user.ID) {
		return nil, false, xerrors.ErrConflictingLink
	}

	created := false
	if user == nil {
		if err := s.createLocked(candidate); err != nil {
			return nil, false, err
		}
		user, created = s.users[candidate.ID], true
	}

	if _, ok := s.logins[key]; !ok {
		s.logins[key] = auth.ExternalLogin{
			Provider:       ident.Provider,
			ProviderUserID: ident.ProviderUserID,
			UserID:         user.ID,
			DisplayName:    ident.DisplayName,
			CreatedAt:      time.Now().UTC(),
		}
	}

	cp := *user
	return &cp, created, nil
}

// LinkLogin records an existing provider link without touching users.
func (s *Store) LinkLogin(provider, providerUserID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins[provider+"|"+providerUserID] = auth.ExternalLogin{
		Provider:       provider,
		ProviderUserID: providerUserID,
		UserID:         userID,
		CreatedAt:      time.Now().UTC(),
	}
}

func (s *Store) ListExternalLogins(_ context.Context, userID string) ([]auth.ExternalLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []auth.ExternalLogin{}
	for _, l := range s.logins {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// Mail is one recorded message.
type Mail struct {
	To, Subject, Body string
}

// Notifier records every mail instead of sending it.
type Notifier struct {
	mu   sync.Mutex
	sent []Mail
}

func (n *Notifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Mail{to, subject, body})
	return nil
}

func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *Notifier) Last(t testing.TB, to string) Mail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if strings.EqualFold(n.sent[i].To, to) {
			return n.sent[i]
		}
	}
	t.Fatalf("no mail sent to %s", to)
	return Mail{}
}

var tokenParam = regexp.MustCompile(`token=([^&"]+)`)

// TokenIn extracts the action token from a mailed link.
func TokenIn(t testing.TB, m Mail) string {
	t.Helper()
	match := tokenParam.FindStringSubmatch(m.Body)
	if match == nil {
		t.Fatalf("no token in mail %q", m.Subject)
	}
	tok, err := url.QueryUnescape(match[1])
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	return tok
}
