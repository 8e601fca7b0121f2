package fermax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joshp123/bluedoor/internal/session"
)

const (
	DefaultBaseURL  = "https://blue.fermax.com"
	DefaultTokenURL = "https://oauth.blue.fermax.com/oauth/token"

	// OAuth client identity of the published Blue app. The backend
	// only issues tokens to known clients.
	DefaultClientID     = "dpv7iqz6ee5mazm1iq9dw1d42slyut48kj0mp5fvo58j5ih"
	DefaultClientSecret = "c7ylkqpujwah85yhnprv0wdvyzutlcnkw4sz90buldbulk1"

	pairingsPath   = "/pairing/api/v3/pairings/me"
	deviceBasePath = "/deviceaction/api/v1/device"
)

// App identification headers. The backend rejects unbranded clients,
// so these mirror the iOS Blue app.
const (
	appVersion = "3.2.1"
	appBuild   = "3"
	phoneOS    = "16.4"
	phoneModel = "iPad14,5"
)

var userAgent = fmt.Sprintf("Blue/%s (com.fermax.bluefermax; build:%s; iOS %s) Alamofire/%s",
	appVersion, appBuild, phoneOS, appVersion)

// StatusError surfaces unexpected HTTP statuses from the Blue API.
type StatusError struct {
	Status int
	Body   string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("fermax api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// TokenProvider supplies bearer credentials for authenticated calls.
// Implemented by session.Manager.
type TokenProvider interface {
	EnsureValid(ctx context.Context) (session.Credentials, error)
	ForceRefresh(ctx context.Context) (session.Credentials, error)
}

// Config defines runtime configuration for the Blue API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Fermax Blue cloud API.
type Client struct {
	baseURL string
	tokens  TokenProvider
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config, tokens TokenProvider, logger *slog.Logger) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "fermax"),
	}, nil
}

// Pairings enumerates the account's homes and their visible doors.
// Each call returns the set wholesale; callers replace rather than
// diff.
func (c *Client) Pairings(ctx context.Context) ([]Home, error) {
	resp, err := c.doAuth(ctx, http.MethodGet, pairingsPath, nil)
	if err != nil {
		discoveryFailure.Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		discoveryFailure.Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var pairings []pairing
	if err := json.NewDecoder(resp.Body).Decode(&pairings); err != nil {
		discoveryFailure.Inc()
		return nil, fmt.Errorf("decode pairings: %w", err)
	}
	return homesFromPairings(pairings), nil
}

// OpenDoor fires the directed open command for a door and classifies
// the free-text response. Transport failures (including timeouts) are
// classified as Failure rather than returned as errors; only fatal
// authentication problems surface as an error.
func (c *Client) OpenDoor(ctx context.Context, door Door) (Outcome, error) {
	payload, err := json.Marshal(door.Access)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal access id: %w", err)
	}

	path := fmt.Sprintf("%s/%s/directed-opendoor", deviceBasePath, door.DeviceID)
	resp, err := c.doAuth(ctx, http.MethodPost, path, payload)
	if err != nil {
		if session.IsAuthError(err) {
			return Outcome{}, err
		}
		c.logger.Warn("open door transport failure", "door", door.ID, "err", err)
		outcome := Outcome{Classification: Failure, RawText: err.Error()}
		doorOpenTotal.WithLabelValues(string(outcome.Classification)).Inc()
		return outcome, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	outcome := Outcome{
		Classification: Classify(resp.StatusCode, string(body)),
		RawText:        strings.TrimSpace(string(body)),
		HTTPStatus:     resp.StatusCode,
	}
	doorOpenTotal.WithLabelValues(string(outcome.Classification)).Inc()

	switch outcome.Classification {
	case Success:
		c.logger.Info("door opened", "door", door.ID, "status", resp.StatusCode)
	case Ambiguous:
		c.logger.Warn("door open outcome ambiguous, command was sent",
			"door", door.ID, "status", resp.StatusCode, "body", outcome.RawText)
	default:
		c.logger.Warn("door open failed",
			"door", door.ID, "status", resp.StatusCode, "body", outcome.RawText)
	}
	return outcome, nil
}

// doAuth performs an authenticated request. A rejected credential
// triggers exactly one forced refresh and one retry of the same call;
// a second rejection is a fatal authentication error. The loop is
// bounded so the one-retry guarantee is structural.
func (c *Client) doAuth(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	creds, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	const maxAttempts = 2
	for attempt := 1; ; attempt++ {
		resp, err := c.do(ctx, method, path, body, creds.AccessToken)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			return resp, nil
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if attempt == maxAttempts {
			return nil, &session.AuthError{
				Op:     method + " " + path,
				Status: resp.StatusCode,
				Body:   string(respBody),
			}
		}

		authRetryTotal.Inc()
		creds, err = c.tokens.ForceRefresh(ctx)
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, accessToken string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("app-version", appVersion)
	req.Header.Set("app-build", appBuild)
	req.Header.Set("phone-os", phoneOS)
	req.Header.Set("phone-model", phoneModel)
	req.Header.Set("user-agent", userAgent)
	req.Header.Set("accept-language", "en-ES;q=1.0, es-ES;q=0.9")

	return c.http.Do(req)
}
