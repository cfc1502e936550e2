// Package device talks to the router's REST management API.
//
// Session owns the bearer token and its refresh; Client maps the router's
// resource collections onto typed records.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/metrics"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 8 << 20
)

// TokenCache persists the bearer token outside the process so several
// console instances can share one device login. Load returns "" when no
// token is cached.
type TokenCache interface {
	Load(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, key, token string) error
}

// SessionConfig configures a Session.
type SessionConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	// HTTPClient overrides the default client. Its Timeout is left alone.
	HTTPClient *http.Client
	TokenCache TokenCache
}

// Session is one bearer-token-authenticated connection to the device
// management API. It is safe for concurrent use; token reads and refreshes
// are serialized on mu, HTTP calls for data are not.
type Session struct {
	baseURL    string
	username   string
	password   string
	timeout    time.Duration
	httpClient *http.Client
	cache      TokenCache
	log        logger.Logger

	mu           sync.Mutex
	token        string
	cacheChecked bool
}

// NewSession returns a Session. No network call is made until the first
// request or an explicit Login.
func NewSession(cfg SessionConfig, log logger.Logger) *Session {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Session{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		timeout:    timeout,
		httpClient: client,
		cache:      cfg.TokenCache,
		log:        log,
	}
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login submits the stored credentials and caches the returned token. It
// never retries. A rejected login fails with errs.KindAuth; an unreachable
// endpoint fails with errs.KindAuth wrapping errs.KindDeviceUnavailable.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx)
}

func (s *Session) loginLocked(ctx context.Context) error {
	const op = "device.Login"

	body, err := json.Marshal(loginRequest{Name: s.username, Password: s.password})
	if err != nil {
		return errs.E(errs.KindAuth, op, "failed to encode login request", err)
	}

	status, data, err := s.send(ctx, http.MethodPost, "/login", "", body)
	if err != nil {
		metrics.DeviceLoginsTotal.WithLabelValues("unreachable").Inc()
		return errs.E(errs.KindAuth, op, "login endpoint unreachable", unavailable(op, err))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		metrics.DeviceLoginsTotal.WithLabelValues("rejected").Inc()
		return errs.E(errs.KindAuth, op, fmt.Sprintf("credentials rejected (status %d)", status), nil)
	case status < 200 || status >= 300:
		metrics.DeviceLoginsTotal.WithLabelValues("error").Inc()
		return errs.E(errs.KindAuth, op, "login failed",
			errs.E(errs.KindDeviceUnavailable, op, fmt.Sprintf("unexpected status %d: %s", status, truncate(data)), nil))
	}

	var resp loginResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.Token == "" {
		metrics.DeviceLoginsTotal.WithLabelValues("error").Inc()
		return errs.E(errs.KindAuth, op, "login failed",
			errs.E(errs.KindDeviceUnavailable, op, "malformed login response", err))
	}

	s.token = resp.Token
	s.cacheChecked = true
	metrics.DeviceLoginsTotal.WithLabelValues("ok").Inc()
	s.log.WithFields(map[string]any{"device": s.baseURL}).Info("Logged in to device API")

	if s.cache != nil {
		if err := s.cache.Store(ctx, s.cacheKey(), s.token); err != nil {
			s.log.Error(fmt.Errorf("failed to cache device token: %w", err))
		}
	}
	return nil
}

// currentToken returns the cached token, loading it from the TokenCache or
// logging in when none is held yet.
func (s *Session) currentToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}
	if s.cache != nil && !s.cacheChecked {
		s.cacheChecked = true
		token, err := s.cache.Load(ctx, s.cacheKey())
		if err != nil {
			s.log.Error(fmt.Errorf("failed to load cached device token: %w", err))
		}
		if token != "" {
			s.token = token
			return token, nil
		}
	}
	if err := s.loginLocked(ctx); err != nil {
		return "", err
	}
	return s.token, nil
}

// refresh replaces a token the device rejected. If another caller already
// replaced it while we waited for the lock, that token is reused instead of
// logging in again.
func (s *Session) refresh(ctx context.Context, rejected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.token != rejected {
		return s.token, nil
	}
	s.token = ""
	if err := s.loginLocked(ctx); err != nil {
		return "", err
	}
	return s.token, nil
}

// Do issues method on path with the cached token attached and decodes a 2xx
// JSON response into out (which may be nil). An unauthorized response
// triggers exactly one re-login and one replay; a second unauthorized
// response fails with errs.KindAuth.
func (s *Session) Do(ctx context.Context, method, path string, body, out any) error {
	op := "device " + method + " " + path

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errs.E(errs.KindValidation, op, "failed to encode request body", err)
		}
		payload = encoded
	}

	start := time.Now()
	defer func() {
		metrics.DeviceRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	token, err := s.currentToken(ctx)
	if err != nil {
		metrics.DeviceRequestsTotal.WithLabelValues(path, "auth_error").Inc()
		return err
	}

	status, data, err := s.send(ctx, method, path, token, payload)
	if err != nil {
		metrics.DeviceRequestsTotal.WithLabelValues(path, "unavailable").Inc()
		return unavailable(op, err)
	}

	if status == http.StatusUnauthorized {
		s.log.WithFields(map[string]any{"path": path}).Warn("Device token rejected, logging in again")
		token, err = s.refresh(ctx, token)
		if err != nil {
			metrics.DeviceRequestsTotal.WithLabelValues(path, "auth_error").Inc()
			return err
		}
		status, data, err = s.send(ctx, method, path, token, payload)
		if err != nil {
			metrics.DeviceRequestsTotal.WithLabelValues(path, "unavailable").Inc()
			return unavailable(op, err)
		}
		if status == http.StatusUnauthorized {
			metrics.DeviceRequestsTotal.WithLabelValues(path, "auth_error").Inc()
			return errs.E(errs.KindAuth, op, "unauthorized after re-login", nil)
		}
	}

	err = decode(op, status, data, out)
	metrics.DeviceRequestsTotal.WithLabelValues(path, outcome(err)).Inc()
	return err
}

// send performs one bounded HTTP exchange and returns the status and body.
// Only transport-level failures are returned as errors.
func (s *Session) send(ctx context.Context, method, path, token string, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (s *Session) cacheKey() string {
	return s.baseURL + "|" + s.username
}

func decode(op string, status int, data []byte, out any) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusNotImplemented:
		return errs.E(errs.KindUnsupported, op, fmt.Sprintf("resource not available on this device (status %d)", status), nil)
	case status == http.StatusForbidden:
		return errs.E(errs.KindAuth, op, "forbidden", nil)
	case status < 200 || status >= 300:
		return errs.E(errs.KindDeviceUnavailable, op, fmt.Sprintf("unexpected status %d: %s", status, truncate(data)), nil)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.E(errs.KindDeviceUnavailable, op, "malformed response", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	msg := "device unreachable"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "device request timed out"
	}
	return errs.E(errs.KindDeviceUnavailable, op, msg, err)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errs.KindOf(err))
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
