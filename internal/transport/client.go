// Package transport issues JSON requests against the bound POS server.
// Requests never return a Go error for HTTP or network failures; every
// outcome is folded into a Result so callers can show a message and retry.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

// Request describes one call.  A zero Timeout uses the Target default.
type Request struct {
	Method       string
	Path         string
	Query        url.Values
	Body         any
	Header       http.Header // extra request headers
	RequiresAuth bool
	Timeout      time.Duration
}

// Result is the outcome of Do.  Data holds the (envelope-unwrapped) JSON
// body for both successes and HTTP errors; Err is nil on success.
type Result struct {
	Status int
	Data   json.RawMessage
	Err    *Error
}

// OK reports whether the request succeeded with a 2xx status.
func (r Result) OK() bool { return r.Err == nil }

// AsError returns Err as an error interface, nil on success.
func (r Result) AsError() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Decode unmarshals Data into v.  A failure to decode is reported as a
// malformed-response Error.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Data) == 0 {
		return &Error{Kind: KindMalformed, Status: r.Status, Message: MsgMalformed}
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return &Error{Kind: KindMalformed, Status: r.Status, Message: MsgMalformed + ": " + err.Error()}
	}
	return nil
}

// Client sends requests against a Target.
type Client struct {
	target *Target
	HTTP   *http.Client
	Logger *slog.Logger
}

// New returns a Client bound to target.  The HTTP client carries no global
// timeout; each request gets its own context deadline instead.
func New(target *Target, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		target: target,
		HTTP: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		Logger: logger,
	}
}

// Target returns the binding the client reads from.
func (c *Client) Target() *Target { return c.target }

// Detached returns a client over a private Target bound to baseURL.  The
// shared Target is never touched, so any number of detached clients can
// probe candidates concurrently.
func (c *Client) Detached(baseURL string) *Client {
	t := NewTarget(c.target.Timeout)
	t.SetBaseURL(baseURL)
	t.SetToken(c.target.Token())
	return &Client{target: t, HTTP: c.HTTP, Logger: c.Logger}
}

// WithAddress runs fn with the shared Target temporarily bound to baseURL
// and restores the previous address on every exit path, including panics
// and timeouts.  Scopes are serialized with each other.
func (c *Client) WithAddress(baseURL string, fn func(*Client) Result) Result {
	c.target.scope.Lock()
	defer c.target.scope.Unlock()
	restore := c.target.swap(baseURL)
	defer restore()
	return fn(c)
}

// Do performs req.  It short-circuits without any network activity when no
// address is bound.
func (c *Client) Do(ctx context.Context, req Request) Result {
	snap := c.target.Snapshot()
	if snap.BaseURL == "" {
		return failure(0, KindNoAddress, MsgNoAddress)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.target.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil && method != http.MethodGet {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return failure(0, KindOther, err.Error())
		}
		body = bytes.NewReader(b)
	}

	u := snap.BaseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	hreq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return failure(0, KindOther, err.Error())
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if req.RequiresAuth && snap.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+snap.Token)
	}

	resp, err := c.HTTP.Do(hreq)
	if err != nil {
		res := classify(ctx, err)
		if res.Err.Kind == KindOther {
			c.Logger.Warn("request failed", "method", method, "path", req.Path, "base", snap.BaseURL, "error", err)
		}
		return res
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return classify(ctx, err)
	}

	data, decErr := unwrap(raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, msg := serverMessage(data)
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		if msg == "" {
			msg = MsgFailed
		}
		return Result{
			Status: resp.StatusCode,
			Data:   data,
			Err:    &Error{Kind: KindHTTP, Status: resp.StatusCode, Code: code, Message: msg},
		}
	}
	if decErr != nil {
		return Result{Status: resp.StatusCode, Err: &Error{Kind: KindMalformed, Status: resp.StatusCode, Message: MsgMalformed}}
	}
	return Result{Status: resp.StatusCode, Data: data}
}

func failure(status int, k Kind, msg string) Result {
	return Result{Status: status, Err: &Error{Kind: k, Status: status, Message: msg}}
}

// classify maps a client-side failure onto a Kind.  ctx is the per-request
// context so its deadline distinguishes our timeout from the caller's cancel.
func classify(ctx context.Context, err error) Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return failure(0, KindTimeout, MsgTimeout)
	case errors.Is(err, context.Canceled):
		return failure(0, KindCanceled, MsgCanceled)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return failure(0, KindTimeout, MsgTimeout)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return failure(0, KindUnreachable, MsgUnreachable)
	}
	return failure(0, KindOther, err.Error())
}

// unwrap validates raw JSON and strips a {"data": ...} envelope.  An empty
// body yields nil data without error.
func unwrap(raw []byte) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("invalid json")
	}
	if raw[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(raw, &env); err == nil {
			if d, ok := env["data"]; ok {
				return d, nil
			}
		}
	}
	return json.RawMessage(raw), nil
}

// serverMessage extracts an error code and message from the shapes POS
// servers answer with: {"error": "..."}, {"error": {"code", "message"}} or
// {"message": "..."}.
func serverMessage(data json.RawMessage) (code, msg string) {
	if len(data) == 0 || data[0] != '{' {
		return "", ""
	}
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    string          `json:"code"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", ""
	}
	code, msg = body.Code, strings.TrimSpace(body.Message)
	if len(body.Error) > 0 {
		var s string
		if err := json.Unmarshal(body.Error, &s); err == nil {
			return code, s
		}
		var obj struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body.Error, &obj); err == nil {
			if obj.Code != "" {
				code = obj.Code
			}
			if obj.Message != "" {
				msg = obj.Message
			}
		}
	}
	return code, msg
}
