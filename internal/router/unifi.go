package router

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each individual controller call.
const DefaultTimeout = 5 * time.Second

const (
	csrfHeader   = "x-csrf-token"
	maxErrorBody = 4 << 10
)

// UniFiConfig holds the connection settings for a UniFi OS controller.
type UniFiConfig struct {
	URL                string // e.g. "https://192.168.1.1/"
	Site               string // site ID, usually "default"
	Username           string
	Password           string
	InsecureSkipVerify bool          // controllers ship self-signed certificates
	Timeout            time.Duration // per call, 0 = DefaultTimeout
}

// Configured reports whether every connection setting is present.
func (c UniFiConfig) Configured() bool {
	return c.URL != "" && c.Site != "" && c.Username != "" && c.Password != ""
}

// UniFiClient authorizes guests through the UniFi Network API. Every push
// runs its own login, command and logout sequence.
type UniFiClient struct {
	config    UniFiConfig
	baseURL   string
	transport http.RoundTripper
	logger    *zap.Logger
}

// Option configures a UniFiClient.
type Option func(*UniFiClient)

// WithTransport sets the HTTP transport used for controller calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *UniFiClient) {
		c.transport = rt
	}
}

// NewUniFiClient creates a client for a configured controller.
func NewUniFiClient(config UniFiConfig, logger *zap.Logger, opts ...Option) (*UniFiClient, error) {
	if !config.Configured() {
		return nil, ErrControllerUnconfigured
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	c := &UniFiClient{
		config:    config,
		baseURL:   strings.TrimRight(config.URL, "/"),
		transport: transport,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type authorizeCommand struct {
	Cmd     string `json:"cmd"`
	MAC     string `json:"mac"`
	Minutes int    `json:"minutes"`
}

// AuthorizeMAC logs in, issues authorize-guest for macAddress and logs out.
// A logout failure after a successful command is logged and not returned.
func (c *UniFiClient) AuthorizeMAC(ctx context.Context, macAddress string, minutes int) error {
	c.logger.Info("authorizing MAC address via UniFi",
		zap.String("mac", macAddress),
		zap.Int("minutes", minutes),
	)

	s, err := c.login(ctx)
	if err != nil {
		return err
	}

	status, body, err := s.post(ctx, c.commandURL(), authorizeCommand{
		Cmd:     "authorize-guest",
		MAC:     macAddress,
		Minutes: minutes,
	})
	if err != nil || status != http.StatusOK {
		if logoutErr := s.logout(ctx); logoutErr != nil {
			c.logger.Debug("logout after failed command", zap.Error(logoutErr))
		}
		return &ControllerCommandError{StatusCode: status, Body: body, Err: err}
	}

	if err := s.logout(ctx); err != nil {
		c.logger.Warn("controller logout failed", zap.Error(err))
	}

	c.logger.Info("MAC authorized successfully", zap.String("mac", macAddress))
	return nil
}

// TestConnection logs in and straight back out.
func (c *UniFiClient) TestConnection(ctx context.Context) error {
	s, err := c.login(ctx)
	if err != nil {
		return err
	}
	return s.logout(ctx)
}

func (c *UniFiClient) loginURL() string  { return c.baseURL + "/api/auth/login" }
func (c *UniFiClient) logoutURL() string { return c.baseURL + "/api/auth/logout" }

func (c *UniFiClient) commandURL() string {
	return fmt.Sprintf("%s/proxy/network/api/s/%s/cmd/stamgr", c.baseURL, c.config.Site)
}

// unifiSession carries the cookies and CSRF token of one login.
type unifiSession struct {
	client    *http.Client
	csrfToken string
	logoutURL string
}

func (c *UniFiClient) login(ctx context.Context) (*unifiSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	s := &unifiSession{
		client: &http.Client{
			Jar:       jar,
			Timeout:   c.config.Timeout,
			Transport: c.transport,
		},
		logoutURL: c.logoutURL(),
	}

	req, err := newJSONRequest(ctx, c.loginURL(), map[string]string{
		"username": c.config.Username,
		"password": c.config.Password,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ControllerAuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ControllerAuthError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.csrfToken = resp.Header.Get(csrfHeader)
	return s, nil
}

func (s *unifiSession) post(ctx context.Context, url string, payload any) (int, string, error) {
	req, err := newJSONRequest(ctx, url, payload)
	if err != nil {
		return 0, "", err
	}
	if s.csrfToken != "" {
		req.Header.Set(csrfHeader, s.csrfToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, readErrorBody(resp.Body), nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, "", nil
}

// logout ends the controller session. It still runs when ctx has been
// cancelled so that sessions are not left open on the controller.
func (s *unifiSession) logout(ctx context.Context) error {
	status, body, err := s.post(context.WithoutCancel(ctx), s.logoutURL, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("logout returned %d %s", status, body)
	}
	return nil
}

func newJSONRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}
