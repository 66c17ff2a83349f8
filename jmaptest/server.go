// Package jmaptest provides an in-process JMAP server for tests. It speaks
// the wire format only and answers each method call with a canned handler;
// back-references are recorded but not resolved.
package jmaptest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

const (
	// AccountID is the primary account id advertised by the session.
	AccountID = "u1"
	// Token is the bearer token the server accepts.
	Token = "test-token"
	// Username is reported in the session document.
	Username = "me@x.com"
)

// Call is one decoded method call.
type Call struct {
	Name   string
	Args   map[string]any
	CallID string
}

// Request is one decoded API request.
type Request struct {
	Using []string
	Calls []Call
}

// MethodFunc answers a call. It may return several responses, e.g. an
// EmailSubmission/set followed by its implicit Email/set.
type MethodFunc func(call Call) []Response

// Response is one [name, args, callId] triple. An empty CallID is filled
// with the id of the call being answered.
type Response struct {
	Name   string
	Args   any
	CallID string
}

// Reply answers with a single response named after the call.
func Reply(args any) MethodFunc {
	return func(call Call) []Response {
		return []Response{{Name: call.Name, Args: args}}
	}
}

// Fail answers with a method-level error.
func Fail(errType string) MethodFunc {
	return func(call Call) []Response {
		return []Response{{Name: "error", Args: map[string]any{"type": errType}}}
	}
}

// Server is a fake JMAP server backed by httptest.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	methods     map[string]MethodFunc
	requests    []Request
	sessionGets int
	rawBodies   [][]byte
}

// New starts a plain HTTP server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{methods: make(map[string]MethodFunc)}
	s.Server = httptest.NewServer(s.handler())
	t.Cleanup(s.Close)
	return s
}

// NewTLS starts an HTTPS server; use Client() for a client that trusts it.
func NewTLS(t testing.TB) *Server {
	s := &Server{methods: make(map[string]MethodFunc)}
	s.Server = httptest.NewTLSServer(s.handler())
	t.Cleanup(s.Close)
	return s
}

// Hostname returns host:port of the server.
func (s *Server) Hostname() string {
	u, _ := url.Parse(s.URL)
	return u.Host
}

// Handle registers fn for a method name.
func (s *Server) Handle(method string, fn MethodFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = fn
}

// Requests returns every API request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RawBodies returns the undecoded API request bodies.
func (s *Server) RawBodies() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.rawBodies...)
}

// Calls returns every call of the given method across all requests.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var calls []Call
	for _, r := range s.requests {
		for _, c := range r.Calls {
			if c.Name == method {
				calls = append(calls, c)
			}
		}
	}
	return calls
}

// SessionGets reports how many times the session document was fetched.
func (s *Server) SessionGets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionGets
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/jmap", s.session)
	mux.HandleFunc("POST /api", s.api)
	return mux
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	s.mu.Lock()
	s.sessionGets++
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"apiUrl":   s.URL + "/api",
		"username": Username,
		"primaryAccounts": map[string]string{
			"urn:ietf:params:jmap:mail":       AccountID,
			"urn:ietf:params:jmap:submission": AccountID,
		},
		"capabilities": map[string]any{
			"urn:ietf:params:jmap:core": map[string]any{},
			"urn:ietf:params:jmap:mail": map[string]any{},
		},
		"state": "s0",
	})
}

func (s *Server) api(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}

	var body struct {
		Using       []string            `json:"using"`
		MethodCalls [][]json.RawMessage `json:"methodCalls"`
	}
	raw := json.RawMessage{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := Request{Using: body.Using}
	for _, mc := range body.MethodCalls {
		if len(mc) != 3 {
			http.Error(w, "method call must have 3 elements", http.StatusBadRequest)
			return
		}
		var c Call
		_ = json.Unmarshal(mc[0], &c.Name)
		_ = json.Unmarshal(mc[1], &c.Args)
		_ = json.Unmarshal(mc[2], &c.CallID)
		req.Calls = append(req.Calls, c)
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.rawBodies = append(s.rawBodies, raw)
	methods := make(map[string]MethodFunc, len(s.methods))
	for k, v := range s.methods {
		methods[k] = v
	}
	s.mu.Unlock()

	responses := make([][]any, 0, len(req.Calls))
	for _, c := range req.Calls {
		fn, ok := methods[c.Name]
		if !ok {
			fn = Fail("unknownMethod")
		}
		for _, resp := range fn(c) {
			id := resp.CallID
			if id == "" {
				id = c.CallID
			}
			responses = append(responses, []any{resp.Name, resp.Args, id})
		}
	}

	writeJSON(w, map[string]any{
		"methodResponses": responses,
		"sessionState":    "s0",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
