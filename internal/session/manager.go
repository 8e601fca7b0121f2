package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const DefaultTimeout = 30 * time.Second

// Account holds the user secrets used for the password grant.
type Account struct {
	Username string
	Password string
}

// Config describes the token endpoint and OAuth client identity.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Manager owns the access/refresh token pair and is the only writer
// to the credential store. Renewal is single-flight: concurrent
// callers share one in-flight exchange instead of issuing duplicate
// refresh-token uses, which can invalidate the token family on some
// OAuth2 servers.
type Manager struct {
	account Account
	oauth   *oauth2.Config
	store   Store
	http    *http.Client
	logger  *slog.Logger

	mu    sync.Mutex
	creds Credentials

	renew singleflight.Group

	now func() time.Time
}

func NewManager(cfg Config, account Account, store Store, logger *slog.Logger) (*Manager, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if account.Username == "" || account.Password == "" {
		return nil, fmt.Errorf("account username and password are required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m := &Manager{
		account: account,
		store:   store,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "session"),
		now:     time.Now,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}

	creds, err := store.Load()
	switch {
	case err == nil:
		m.creds = creds
		tokenValid.Set(1)
	case errors.Is(err, ErrStateNotFound):
		// First run; EnsureValid performs the full login.
	default:
		// Storage trouble degrades to in-memory credentials for this
		// process lifetime.
		m.logger.Warn("credential store unreadable, starting unauthenticated", "err", err)
	}

	return m, nil
}

// EnsureValid returns a credential set guaranteed usable for at least
// one call, logging in or refreshing as needed. Credentials more than
// the safety window away from expiry are returned unchanged with no
// network call.
func (m *Manager) EnsureValid(ctx context.Context) (Credentials, error) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if !creds.Empty() && !creds.NearExpiry(m.now()) {
		return creds, nil
	}

	v, err, _ := m.renew.Do("renew", func() (any, error) {
		// A concurrent caller may have completed the renewal while we
		// waited for the flight slot.
		m.mu.Lock()
		current := m.creds
		m.mu.Unlock()
		if !current.Empty() && !current.NearExpiry(m.now()) {
			return current, nil
		}
		return m.exchange(ctx, current)
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

// ForceRefresh unconditionally renews the credential set. It is used
// after a call failed with an authentication error even though
// EnsureValid had just succeeded (clock skew, server-side early
// invalidation).
func (m *Manager) ForceRefresh(ctx context.Context) (Credentials, error) {
	v, err, _ := m.renew.Do("renew", func() (any, error) {
		m.mu.Lock()
		current := m.creds
		m.mu.Unlock()
		return m.exchange(ctx, current)
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

// Invalidate clears in-memory and persisted credentials so the next
// EnsureValid performs a full login.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.creds = Credentials{}
	m.mu.Unlock()
	tokenValid.Set(0)
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clear credential store failed", "err", err)
	}
}

// exchange renews credentials: refresh grant when a refresh token is
// held, falling back to a full login once if the refresh token is
// rejected. A rejected login invalidates the store and propagates.
func (m *Manager) exchange(ctx context.Context, current Credentials) (Credentials, error) {
	if current.RefreshToken == "" {
		return m.login(ctx)
	}

	creds, err := m.refreshGrant(ctx, current.RefreshToken)
	if err == nil {
		return creds, nil
	}
	if !IsAuthError(err) {
		return Credentials{}, err
	}

	m.logger.Warn("refresh token rejected, retrying with full login", "err", err)
	creds, loginErr := m.login(ctx)
	if loginErr != nil {
		m.Invalidate()
		return Credentials{}, loginErr
	}
	return creds, nil
}

func (m *Manager) login(ctx context.Context) (Credentials, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)
	token, err := m.oauth.PasswordCredentialsToken(ctx, m.account.Username, m.account.Password)
	if err != nil {
		loginFailure.Inc()
		tokenValid.Set(0)
		return Credentials{}, wrapExchangeError("login", err)
	}
	loginSuccess.Inc()
	return m.adopt(token, ""), nil
}

func (m *Manager) refreshGrant(ctx context.Context, refreshToken string) (Credentials, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)
	source := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		refreshFailure.Inc()
		tokenValid.Set(0)
		return Credentials{}, wrapExchangeError("refresh", err)
	}
	refreshSuccess.Inc()
	return m.adopt(token, refreshToken), nil
}

// adopt publishes the renewed credential set and persists it
// immediately. Some servers omit the refresh token on the refresh
// grant; the previous one stays valid then.
func (m *Manager) adopt(token *oauth2.Token, prevRefresh string) Credentials {
	creds := Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = prevRefresh
	}

	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	tokenValid.Set(1)

	if err := m.store.Save(creds); err != nil {
		storePersistOK.Set(0)
		m.logger.Warn("persist credentials failed, continuing in-memory", "err", err)
	} else {
		storePersistOK.Set(1)
	}
	return creds
}

func wrapExchangeError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := retrieveErr.Response.StatusCode
		body := strings.TrimSpace(string(retrieveErr.Body))
		if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
			return &AuthError{Op: op, Status: status, Body: body}
		}
		return fmt.Errorf("%s failed %d: %s", op, status, body)
	}
	return fmt.Errorf("%s: %w", op, err)
}
