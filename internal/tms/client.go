package tms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
)

var (
	// ErrEmptyToken is returned when the login endpoint answers 2xx with no token.
	ErrEmptyToken = errors.New("login returned an empty token")
	// ErrUnexpectedResponse wraps bodies that do not match the expected shape.
	ErrUnexpectedResponse = errors.New("unexpected tms response")
	// ErrShipmentNotReady is returned while the TMS still reports no shipment id for a protocol.
	ErrShipmentNotReady = errors.New("shipment id not available yet")
)

// Config for the TMS client.
type Config struct {
	BaseURL    string        // default https://ws-tms.lincros.com/api
	Timeout    time.Duration // http client timeout
	HTTPClient *http.Client  // optional; Timeout is ignored when set
}

// Client talks to the TMS shipment API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultTMSBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:    cfg,
		http:   hc,
		logger: logger,
	}
}

// Login exchanges login and password for a bearer token. The endpoint answers text/plain.
func (c *Client) Login(ctx context.Context, login, password string) (string, error) {
	raw, _, err := c.postJSON(ctx, constants.PathLogin, loginRequest{Login: login, Password: password},
		map[string]string{"Accept": "text/plain"})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	token := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if token == "" {
		return "", ErrEmptyToken
	}
	c.logger.Info("tms.login.ok", "login", login)
	return token, nil
}

// CreateShipments submits the whole batch in one request and returns the protocols in
// the order the TMS assigned them.
func (c *Client) CreateShipments(ctx context.Context, token string, shipments []Shipment) ([]int64, error) {
	raw, _, err := c.postJSON(ctx, constants.PathCreateShipments, createRequest{Shipments: shipments}, bearer(token))
	if err != nil {
		return nil, err
	}
	if err := validateJSON(createSchema, raw); err != nil {
		c.logger.Error("tms.create.invalid_response", "error", err, "body", truncate(string(raw), 200))
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnexpectedResponse, err)
	}
	c.logger.Info("tms.create.ok", "submitted", len(shipments), "protocols", len(out.Protocols))
	return out.Protocols, nil
}

// RecoverShipment resolves the shipment id (oidEmbarque) behind a protocol.
func (c *Client) RecoverShipment(ctx context.Context, token string, protocol int64) (int64, error) {
	raw, _, err := c.postJSON(ctx, constants.PathRecoverShipment, recoverRequest{Protocol: protocol}, bearer(token))
	if err != nil {
		return 0, err
	}
	if err := validateJSON(recoverSchema, raw); err != nil {
		c.logger.Warn("tms.recover.invalid_response", "protocol", protocol, "error", err, "body", truncate(string(raw), 200))
		return 0, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	var out recoverResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", ErrUnexpectedResponse, err)
	}
	if out.Shipment.OID == 0 {
		return 0, ErrShipmentNotReady
	}
	return out.Shipment.OID, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
