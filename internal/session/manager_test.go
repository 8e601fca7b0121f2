package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type tokenEndpoint struct {
	requests       atomic.Int64
	refreshGrants  atomic.Int64
	passwordGrants atomic.Int64

	rejectRefresh  bool
	rejectPassword bool
	delay          time.Duration
}

func (e *tokenEndpoint) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e.requests.Add(1)
		if e.delay > 0 {
			time.Sleep(e.delay)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if _, _, ok := r.BasicAuth(); !ok {
			t.Errorf("expected basic client auth header")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}

		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			e.refreshGrants.Add(1)
			if e.rejectRefresh {
				writeTokenError(w, http.StatusBadRequest, "invalid_grant")
				return
			}
		case "password":
			e.passwordGrants.Add(1)
			if e.rejectPassword {
				writeTokenError(w, http.StatusBadRequest, "invalid_grant")
				return
			}
		default:
			t.Errorf("unexpected grant_type: %s", r.PostForm.Get("grant_type"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh-access","refresh_token":"fresh-refresh","expires_in":3600,"token_type":"Bearer"}`)
	}
}

func writeTokenError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"error":"`+code+`"}`)
}

func newTestManager(t *testing.T, endpoint *tokenEndpoint, creds Credentials) (*Manager, Store) {
	t.Helper()

	server := httptest.NewServer(endpoint.handler(t))
	t.Cleanup(server.Close)

	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if !creds.Empty() {
		if err := store.Save(creds); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	manager, err := NewManager(
		Config{TokenURL: server.URL + "/oauth/token", ClientID: "client-id", ClientSecret: "client-secret"},
		Account{Username: "user@example.com", Password: "hunter2"},
		store,
		nil,
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager, store
}

func TestEnsureValidReturnsFreshCredentialsUnchanged(t *testing.T) {
	endpoint := &tokenEndpoint{}
	creds := Credentials{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	manager, _ := newTestManager(t, endpoint, creds)

	got, err := manager.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got.AccessToken != "stored-access" {
		t.Fatalf("expected stored token, got %q", got.AccessToken)
	}
	if n := endpoint.requests.Load(); n != 0 {
		t.Fatalf("expected no network calls, got %d", n)
	}
}

func TestEnsureValidRefreshesNearExpiry(t *testing.T) {
	endpoint := &tokenEndpoint{}
	creds := Credentials{
		AccessToken:  "stale-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(4 * time.Minute),
	}
	manager, store := newTestManager(t, endpoint, creds)

	got, err := manager.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got.AccessToken != "fresh-access" {
		t.Fatalf("expected renewed token, got %q", got.AccessToken)
	}
	if n := endpoint.refreshGrants.Load(); n != 1 {
		t.Fatalf("expected exactly one refresh exchange, got %d", n)
	}
	if n := endpoint.passwordGrants.Load(); n != 0 {
		t.Fatalf("expected no login, got %d", n)
	}

	persisted, err := store.Load()
	if err != nil {
		t.Fatalf("load persisted state: %v", err)
	}
	if persisted.RefreshToken != "fresh-refresh" {
		t.Fatalf("expected persisted refresh token, got %q", persisted.RefreshToken)
	}
	if !persisted.ExpiresAt.After(time.Now().Add(30 * time.Minute)) {
		t.Fatalf("expected server-derived expiry, got %s", persisted.ExpiresAt)
	}
}

func TestEnsureValidLogsInWhenUnauthenticated(t *testing.T) {
	endpoint := &tokenEndpoint{}
	manager, _ := newTestManager(t, endpoint, Credentials{})

	got, err := manager.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got.AccessToken != "fresh-access" {
		t.Fatalf("expected fresh token, got %q", got.AccessToken)
	}
	if n := endpoint.passwordGrants.Load(); n != 1 {
		t.Fatalf("expected exactly one login, got %d", n)
	}
}

func TestEnsureValidRenewalIsSingleFlight(t *testing.T) {
	endpoint := &tokenEndpoint{delay: 50 * time.Millisecond}
	creds := Credentials{
		AccessToken:  "stale-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	manager, _ := newTestManager(t, endpoint, creds)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Credentials, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = manager.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].AccessToken != "fresh-access" {
			t.Fatalf("caller %d observed %q", i, results[i].AccessToken)
		}
	}
	if n := endpoint.refreshGrants.Load(); n != 1 {
		t.Fatalf("expected one refresh exchange across %d callers, got %d", callers, n)
	}
}

func TestRejectedRefreshFallsBackToLogin(t *testing.T) {
	endpoint := &tokenEndpoint{rejectRefresh: true}
	creds := Credentials{
		AccessToken:  "stale-access",
		RefreshToken: "revoked-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	manager, _ := newTestManager(t, endpoint, creds)

	got, err := manager.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got.AccessToken != "fresh-access" {
		t.Fatalf("expected token from login fallback, got %q", got.AccessToken)
	}
	if endpoint.refreshGrants.Load() != 1 || endpoint.passwordGrants.Load() != 1 {
		t.Fatalf("expected one refresh then one login, got %d/%d",
			endpoint.refreshGrants.Load(), endpoint.passwordGrants.Load())
	}
}

func TestRejectedLoginInvalidatesStore(t *testing.T) {
	endpoint := &tokenEndpoint{rejectRefresh: true, rejectPassword: true}
	creds := Credentials{
		AccessToken:  "stale-access",
		RefreshToken: "revoked-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	manager, store := newTestManager(t, endpoint, creds)

	_, err := manager.EnsureValid(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected cleared store, got %v", err)
	}
}

func TestForceRefreshExchangesDespiteValidCredentials(t *testing.T) {
	endpoint := &tokenEndpoint{}
	creds := Credentials{
		AccessToken:  "clock-skewed-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	manager, _ := newTestManager(t, endpoint, creds)

	got, err := manager.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if got.AccessToken != "fresh-access" {
		t.Fatalf("expected renewed token, got %q", got.AccessToken)
	}
	if n := endpoint.refreshGrants.Load(); n != 1 {
		t.Fatalf("expected one refresh exchange, got %d", n)
	}
}

func TestInvalidateForcesFullLogin(t *testing.T) {
	endpoint := &tokenEndpoint{}
	creds := Credentials{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	manager, _ := newTestManager(t, endpoint, creds)

	manager.Invalidate()

	if _, err := manager.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if n := endpoint.passwordGrants.Load(); n != 1 {
		t.Fatalf("expected full login after invalidate, got %d", n)
	}
	if n := endpoint.refreshGrants.Load(); n != 0 {
		t.Fatalf("expected no refresh after invalidate, got %d", n)
	}
}

func TestNearExpiryWindow(t *testing.T) {
	now := time.Now()
	fresh := Credentials{AccessToken: "a", ExpiresAt: now.Add(SafetyWindow + time.Second)}
	if fresh.NearExpiry(now) {
		t.Fatalf("credentials outside the window flagged as near expiry")
	}
	boundary := Credentials{AccessToken: "a", ExpiresAt: now.Add(SafetyWindow)}
	if !boundary.NearExpiry(now) {
		t.Fatalf("window boundary must count as near expiry")
	}
	past := Credentials{AccessToken: "a", ExpiresAt: now.Add(-time.Second)}
	if !past.NearExpiry(now) {
		t.Fatalf("expired credentials must count as near expiry")
	}
}
