// SPDX-License-Identifier: MIT

// Package nvhttp implements the GET based control protocol spoken by
// GameStream and Sunshine family hosts. Responses are XML envelopes with a
// status_code attribute; binary payloads travel as lowercase hex.
package nvhttp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/log"
)

// Default control ports used by host software.
const (
	DefaultHTTPPort  = 47989
	DefaultHTTPSPort = 47984
)

// Request timeouts. NoTimeout waits forever and is reserved for the
// pairing round that blocks on the host user's PIN entry.
const (
	FastFailTimeout = 2 * time.Second
	RequestTimeout  = 5 * time.Second
	QuitTimeout     = 30 * time.Second
	NoTimeout       = 0
)

// Client speaks to one host target over HTTP and HTTPS. HTTPS requests
// present the client identity certificate; server name verification is
// disabled because trust derives from the pinned certificate the pairing
// flow establishes.
type Client struct {
	mu         sync.Mutex
	address    Address
	httpsPort  uint16
	serverCert []byte

	stop        chan struct{}
	stopOnce    sync.Once
	processStop <-chan struct{}
	razerUUID   func() string

	httpClient  *http.Client
	httpsClient *http.Client
	logger      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithProcessStop wires the process-wide shutdown signal into every
// request the client makes.
func WithProcessStop(ch <-chan struct{}) Option {
	return func(c *Client) { c.processStop = ch }
}

// WithRazerUUID supplies the federated identity UUID appended to
// serverinfo queries when present.
func WithRazerUUID(fn func() string) Option {
	return func(c *Client) { c.razerUUID = fn }
}

// NewClient builds a client for one host target. httpsPort may be zero
// when not yet known; ServerInfo rederives it from the host response.
func NewClient(address Address, httpsPort uint16, serverCert []byte, id *identity.Manager, opts ...Option) *Client {
	c := &Client{
		address:    address,
		httpsPort:  httpsPort,
		serverCert: serverCert,
		stop:       make(chan struct{}),
		httpClient: &http.Client{},
		httpsClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates:       []tls.Certificate{id.TLSCertificate()},
					InsecureSkipVerify: true, //nolint:gosec // pinned-cert trust model
				},
			},
		},
		logger: log.WithComponent("nvhttp"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stop aborts any in-flight or future request on this client. Used to
// break out of the unbounded pairing wait.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Address returns the target address.
func (c *Client) Address() Address { return c.address }

// HTTPPort returns the plain HTTP port of the target.
func (c *Client) HTTPPort() uint16 { return c.address.Port }

// HTTPSPort returns the current HTTPS port, 0 when unknown.
func (c *Client) HTTPSPort() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpsPort
}

// SetHTTPSPort updates the HTTPS port.
func (c *Client) SetHTTPSPort(port uint16) {
	c.mu.Lock()
	c.httpsPort = port
	c.mu.Unlock()
}

// ServerCert returns the pinned server certificate, nil when unpaired.
func (c *Client) ServerCert() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCert
}

// SetServerCert pins the server certificate received during pairing.
func (c *Client) SetServerCert(pem []byte) {
	c.mu.Lock()
	c.serverCert = pem
	c.mu.Unlock()
}

// Request issues one GET against the host. Every URL carries the fixed
// uniqueid and a fresh uuid; args is an already-encoded query fragment.
// A zero timeout means no deadline.
func (c *Client) Request(ctx context.Context, secure bool, command, args string, timeout time.Duration) ([]byte, error) {
	scheme, port, client := "http", c.address.Port, c.httpClient
	if secure {
		scheme, port, client = "https", c.HTTPSPort(), c.httpsClient
		if port == 0 {
			return nil, fmt.Errorf("request %s: https port unknown", command)
		}
	}

	query := "uniqueid=" + identity.UniqueID + "&uuid=" + uuid.NewString()
	if args != "" {
		query += "&" + args
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     fmt.Sprintf("%s:%d", c.address.Host, port),
		Path:     "/" + command,
		RawQuery: query,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, timeout)
		defer tcancel()
	}
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-c.processStop:
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", command, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", command, c.address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", command, err)
	}
	return body, nil
}

func (c *Client) serverInfoArgs() string {
	if c.razerUUID == nil {
		return "razer_uuid="
	}
	return "razer_uuid=" + url.QueryEscape(c.razerUUID())
}

// ServerInfo fetches and validates /serverinfo. With a pinned certificate
// and a known HTTPS port it goes over HTTPS first, falling back to HTTP
// once when the host rejects the certificate with 401. Without either it
// uses HTTP and rederives the HTTPS port from the response.
func (c *Client) ServerInfo(ctx context.Context, fastFail bool) (*ServerInfo, error) {
	timeout := RequestTimeout
	if fastFail {
		timeout = FastFailTimeout
	}

	if len(c.ServerCert()) > 0 && c.HTTPSPort() != 0 {
		doc, err := c.Request(ctx, true, "serverinfo", c.serverInfoArgs(), timeout)
		if err == nil {
			err = VerifyStatus(doc)
		}
		if err == nil {
			return ParseServerInfo(doc)
		}
		if !IsStatus(err, StatusCertRejected) {
			return nil, err
		}
		c.logger.Debug().
			Str("event", "nvhttp.https_rejected").
			Str("address", c.address.String()).
			Msg("certificate rejected, falling back to http")
		doc, err = c.Request(ctx, false, "serverinfo", c.serverInfoArgs(), timeout)
		if err != nil {
			return nil, err
		}
		if err := VerifyStatus(doc); err != nil {
			return nil, err
		}
		return ParseServerInfo(doc)
	}

	doc, err := c.Request(ctx, false, "serverinfo", c.serverInfoArgs(), timeout)
	if err != nil {
		return nil, err
	}
	if err := VerifyStatus(doc); err != nil {
		return nil, err
	}
	info, err := ParseServerInfo(doc)
	if err != nil {
		return nil, err
	}

	port := info.HTTPSPort
	if port == 0 {
		port = DefaultHTTPSPort
	}
	c.SetHTTPSPort(uint16(port))

	// With a pinned cert the HTTPS answer is authoritative, so retry now
	// that the port is known.
	if len(c.ServerCert()) > 0 {
		return c.ServerInfo(ctx, fastFail)
	}
	return info, nil
}

// AppList fetches and parses /applist over HTTPS.
func (c *Client) AppList(ctx context.Context) ([]AppEntry, error) {
	doc, err := c.Request(ctx, true, "applist", "", RequestTimeout)
	if err != nil {
		return nil, err
	}
	if err := VerifyStatus(doc); err != nil {
		return nil, err
	}
	return ParseAppList(doc)
}

// AppAsset downloads the box art image for one app.
func (c *Client) AppAsset(ctx context.Context, appID int) ([]byte, error) {
	return c.Request(ctx, true, "appasset",
		fmt.Sprintf("appid=%d&AssetType=2&AssetIdx=0", appID), RequestTimeout)
}

// Quit asks the host to end the running app. Newer host versions report
// success even when another client owns the session, so the running game
// is re-checked and StatusQuitNotOwner synthesized when it survived.
func (c *Client) Quit(ctx context.Context) error {
	doc, err := c.Request(ctx, true, "cancel", "", QuitTimeout)
	if err != nil {
		return err
	}
	if err := VerifyStatus(doc); err != nil {
		return err
	}
	info, err := c.ServerInfo(ctx, false)
	if err != nil {
		return err
	}
	if info.CurrentGame() != 0 {
		return &StatusError{Code: StatusQuitNotOwner}
	}
	return nil
}

// Unpair drops this client's pairing on the host. Errors are returned but
// callers on failure paths typically ignore them.
func (c *Client) Unpair(ctx context.Context) error {
	doc, err := c.Request(ctx, false, "unpair", "", RequestTimeout)
	if err != nil {
		return err
	}
	return VerifyStatus(doc)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == code
	}
	return false
}
