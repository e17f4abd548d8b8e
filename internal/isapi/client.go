package isapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/faults"
)

const (
	defaultTimeout = 10 * time.Second

	// maxBodySize caps buffered responses. Configuration backups and face
	// libraries are the largest bodies seen. Larger bodies are an error,
	// never truncated.
	maxBodySize = 64 << 20

	contentTypeJSON = "application/json"
	contentTypeXML  = "application/xml"
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Target addresses one device.
type Target struct {
	DeviceID string
	Host     string
	Port     int
	Username string
	Password string
	UseHTTPS bool

	// Timeout overrides the client default when non-zero.
	Timeout time.Duration
}

// BaseURL returns scheme://host:port.
func (t Target) BaseURL() string {
	scheme := "http"
	if t.UseHTTPS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Request describes one ISAPI call.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string

	// Timeout overrides the target and client timeouts when non-zero.
	Timeout time.Duration

	// NoAuth sends the request without credentials and skips the digest
	// retry. Used by discovery probes.
	NoAuth bool
}

func (r Request) op() string {
	return r.Method + " " + r.Path
}

// Response is a fully buffered reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client.
type Options struct {
	// Timeout is the default per-request timeout. Defaults to 10s.
	Timeout time.Duration

	// InsecureSkipVerify accepts self-signed device certificates.
	InsecureSkipVerify bool

	// Transport replaces the default transport; tests use it to inject
	// failures.
	Transport http.RoundTripper

	Logger Logger
}

// Client talks ISAPI to any number of devices. Safe for concurrent use.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  Logger
	cnonce  func() string
	maxBody int64
}

// NewClient creates a client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone() //nolint:errcheck // DefaultTransport is always *http.Transport
		t.MaxIdleConnsPerHost = 4
		if opts.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // devices ship self-signed certificates
		}
		transport = t
	}

	return &Client{
		// Deadlines come from the request context so streams can stay open.
		http:    &http.Client{Transport: transport},
		timeout: opts.Timeout,
		logger:  opts.Logger,
		cnonce:  randomCNonce,
		maxBody: maxBodySize,
	}
}

// Timeout returns the default per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Send performs req against t and returns the buffered response regardless
// of status. Only transport failures and a failed digest retry are errors.
func (c *Client) Send(ctx context.Context, t Target, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(t, req))
	defer cancel()

	resp, err := c.roundTrip(ctx, t, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, transportError(req.op(), t, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, &faults.Error{
			Kind: faults.KindDevice, Op: req.op(), DeviceID: t.DeviceID, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("response body exceeds %d bytes", c.maxBody),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Do performs req and classifies any non-success status as a *faults.Error.
func (c *Client) Do(ctx context.Context, t Target, req Request) (*Response, error) {
	resp, err := c.Send(ctx, t, req)
	if err != nil {
		return nil, err
	}
	if err := statusError(req.op(), t, resp.StatusCode, resp.Body); err != nil {
		return resp, err
	}
	return resp, nil
}

// Stream performs req and returns the open response for the caller to read
// until ctx is cancelled. Only ctx bounds the call. The caller closes the body.
func (c *Client) Stream(ctx context.Context, t Target, req Request) (*http.Response, error) {
	resp, err := c.roundTrip(ctx, t, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort for the error message
		resp.Body.Close()
		return nil, statusError(req.op(), t, resp.StatusCode, body)
	}
	return resp, nil
}

// GetXML fetches path and decodes the XML body into out.
func (c *Client) GetXML(ctx context.Context, t Target, path string, out any) error {
	return c.DoXML(ctx, t, http.MethodGet, path, nil, out)
}

// DoXML sends in as XML (when non-nil) and decodes the reply into out (when non-nil).
func (c *Client) DoXML(ctx context.Context, t Target, method, path string, in, out any) error {
	req := Request{Method: method, Path: path}
	if in != nil {
		body, err := xml.Marshal(in)
		if err != nil {
			return faults.Wrap(faults.KindBadRequest, req.op(), fmt.Errorf("encoding xml: %w", err))
		}
		req.Body = append([]byte(xml.Header), body...)
		req.ContentType = contentTypeXML
	}

	resp, err := c.Do(ctx, t, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := xml.Unmarshal(resp.Body, out); err != nil {
		return decodeError(req.op(), t, err)
	}
	return nil
}

// DoJSON sends in as JSON with format=json and decodes the reply into out.
func (c *Client) DoJSON(ctx context.Context, t Target, method, path string, in, out any) error {
	req := Request{Method: method, Path: path, Query: JSONQuery()}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return faults.Wrap(faults.KindBadRequest, req.op(), fmt.Errorf("encoding json: %w", err))
		}
		req.Body = body
		req.ContentType = contentTypeJSON
	}

	resp, err := c.Do(ctx, t, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return decodeError(req.op(), t, err)
	}
	return nil
}

func (c *Client) timeoutFor(t Target, req Request) time.Duration {
	switch {
	case req.Timeout > 0:
		return req.Timeout
	case t.Timeout > 0:
		return t.Timeout
	default:
		return c.timeout
	}
}

// roundTrip sends the request with Basic credentials and answers a Digest
// challenge exactly once.
func (c *Client) roundTrip(ctx context.Context, t Target, req Request) (*http.Response, error) {
	u := t.BaseURL() + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	first, err := c.newHTTPRequest(ctx, req, u)
	if err != nil {
		return nil, err
	}
	if !req.NoAuth {
		first.SetBasicAuth(t.Username, t.Password)
	}

	resp, err := c.http.Do(first)
	if err != nil {
		return nil, transportError(req.op(), t, err)
	}
	if resp.StatusCode != http.StatusUnauthorized || req.NoAuth {
		return resp, nil
	}

	challenge, cerr := ChallengeFromResponse(resp.Header)
	drain(resp)
	if cerr != nil {
		return nil, &faults.Error{
			Kind: faults.KindAuthentication, Op: req.op(), DeviceID: t.DeviceID,
			StatusCode: http.StatusUnauthorized, Message: "basic credentials rejected", Err: cerr,
		}
	}

	retry, err := c.newHTTPRequest(ctx, req, u)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization",
		challenge.Authorization(t.Username, t.Password, req.Method, retry.URL.RequestURI(), c.cnonce()))

	c.logger.Debug("answering digest challenge", "device_id", t.DeviceID, "path", req.Path, "realm", challenge.Realm)

	resp, err = c.http.Do(retry)
	if err != nil {
		return nil, transportError(req.op(), t, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, &faults.Error{
			Kind: faults.KindAuthentication, Op: req.op(), DeviceID: t.DeviceID,
			StatusCode: http.StatusUnauthorized, Message: "digest credentials rejected",
		}
	}
	return resp, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, u string) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, faults.Wrap(faults.KindBadRequest, req.op(), err)
	}
	if req.ContentType != "" {
		hr.Header.Set("Content-Type", req.ContentType)
	}
	return hr, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // draining for connection reuse
	resp.Body.Close()
}

// transportError classifies a failure to get any response at all.
func transportError(op string, t Target, err error) error {
	kind := faults.KindConnection
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = faults.KindTimeout
	}
	return &faults.Error{Kind: kind, Op: op, DeviceID: t.DeviceID, Err: err}
}

func decodeError(op string, t Target, err error) error {
	return &faults.Error{
		Kind: faults.KindDevice, Op: op, DeviceID: t.DeviceID,
		Message: "unreadable response body", Err: err,
	}
}
