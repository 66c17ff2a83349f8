package jmap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	gojmap "git.sr.ht/~rockorager/go-jmap"
	"golang.org/x/oauth2"
)

const wellKnownPath = "/.well-known/jmap"

// Client performs authenticated JMAP requests against one server. The
// session document fetched by Session is reused by later calls.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	transport http.RoundTripper

	mu      sync.Mutex
	session *gojmap.Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client whose transport and timeout carry the
// requests. The bearer token is added on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL sets the scheme and host used for session discovery,
// e.g. "http://127.0.0.1:8080". Defaults to https://<hostname>.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the JMAP server at hostname using a bearer token.
func NewClient(hostname, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    "https://" + hostname,
		userAgent:  "jmap-react",
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   &headerTransport{base: base, userAgent: c.userAgent},
	}
	return c
}

// Session fetches the session document and keeps it for later calls.
func (c *Client) Session(ctx context.Context) (*gojmap.Session, error) {
	api, rt := c.api(ctx)
	api.Session = nil
	if err := api.Authenticate(); err != nil {
		return nil, rt.classify(err)
	}
	if err := rt.statusErr(); err != nil {
		return nil, err
	}
	if api.Session == nil {
		return nil, fmt.Errorf("%w: session", ErrMissingField)
	}

	c.mu.Lock()
	c.session = api.Session
	c.mu.Unlock()

	c.logger.Debug("session resolved", "api_url", api.Session.APIURL, "username", api.Session.Username)
	return api.Session, nil
}

// Call posts a batch of method calls to the session's API endpoint. The
// session is fetched first if Session has not been called.
func (c *Client) Call(ctx context.Context, req *gojmap.Request) (*gojmap.Response, error) {
	if c.logger.Enabled(ctx, slog.LevelDebug) {
		names := make([]string, 0, len(req.Calls))
		for _, inv := range req.Calls {
			names = append(names, inv.Name)
		}
		c.logger.Debug("jmap request", "methods", names, "using", req.Using)
	}

	api, rt := c.api(ctx)
	resp, err := api.Do(req)
	if err != nil {
		return nil, rt.classify(err)
	}
	if err := rt.statusErr(); err != nil {
		return nil, err
	}
	if resp == nil || resp.Responses == nil {
		return nil, fmt.Errorf("%w: methodResponses", ErrMissingField)
	}

	if api.Session != nil {
		c.mu.Lock()
		if c.session == nil {
			c.session = api.Session
		}
		c.mu.Unlock()
	}
	return resp, nil
}

// api returns a go-jmap client whose requests run under ctx.
func (c *Client) api(ctx context.Context) (*gojmap.Client, *callTransport) {
	rt := &callTransport{ctx: ctx, base: c.transport}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	return &gojmap.Client{
		SessionEndpoint: c.baseURL + wellKnownPath,
		HttpClient:      &http.Client{Transport: rt, Timeout: c.httpClient.Timeout},
		Session:         session,
	}, rt
}

// headerTransport sets the headers every JMAP request carries.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Accept", "application/json")
	if r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if t.userAgent != "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(r)
}

// callTransport binds one operation's requests to its context and records
// the outcome of the last round trip so failures can be typed.
type callTransport struct {
	ctx  context.Context
	base http.RoundTripper

	method string
	url    string
	status int
	err    error
}

func (t *callTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.method, t.url = r.Method, r.URL.String()
	resp, err := t.base.RoundTrip(r.WithContext(t.ctx))
	t.err = err
	if err == nil {
		t.status = resp.StatusCode
	}
	return resp, err
}

func (t *callTransport) statusErr() error {
	if t.status != 0 && (t.status < 200 || t.status > 299) {
		return &HTTPError{StatusCode: t.status}
	}
	return nil
}

// classify maps a go-jmap error onto TransportError, HTTPError or
// ErrMalformedResponse.
func (t *callTransport) classify(err error) error {
	if t.err != nil {
		return &TransportError{Op: t.method, URL: t.url, Err: t.err}
	}
	if t.status != 0 && (t.status < 200 || t.status > 299) {
		return &HTTPError{StatusCode: t.status, Err: err}
	}
	if ctxErr := t.ctx.Err(); ctxErr != nil {
		return &TransportError{Op: t.method, URL: t.url, Err: ctxErr}
	}
	return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
}
