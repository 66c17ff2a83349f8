package jmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gojmap "git.sr.ht/~rockorager/go-jmap"
)

var (
	// ErrMalformedResponse is returned when a server reply cannot be decoded
	// into the expected shape.
	ErrMalformedResponse = errors.New("malformed JMAP response")

	// ErrMissingField is returned when a decoded reply lacks a required value.
	ErrMissingField = errors.New("missing expected field")

	// ErrNotFound is returned when a thread or email id resolves to nothing.
	ErrNotFound = errors.New("not found")

	// ErrMailboxNotFound is returned when no mailbox has the requested name.
	ErrMailboxNotFound = errors.New("mailbox not found")

	// ErrAmbiguousMailbox is returned when several mailboxes share the requested name.
	ErrAmbiguousMailbox = errors.New("more than one mailbox matches")

	// ErrNoIdentity is returned when no identity's address equals the username.
	ErrNoIdentity = errors.New("no matching sending identity")
)

// TransportError wraps a failure to reach the server at all.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is returned for non-2xx replies.
type HTTPError struct {
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("JMAP server returned status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPError) Unwrap() error { return e.Err }

// MethodError is a method-level error response ("error" invocation).
type MethodError struct {
	CallID      string `json:"-"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func (e *MethodError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("JMAP method error in call %s (%s): %s", e.CallID, e.Type, e.Description)
	}
	return fmt.Sprintf("JMAP method error in call %s (%s)", e.CallID, e.Type)
}

// SetError describes why a single object in a /set call was not created or updated.
type SetError struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Properties  []string `json:"properties,omitempty"`
}

func (e SetError) String() string {
	s := e.Type
	if e.Description != "" {
		s += ": " + e.Description
	}
	if len(e.Properties) > 0 {
		s += fmt.Sprintf(" %v", e.Properties)
	}
	return s
}

// toMethodError re-reads a decoded "error" invocation through its wire
// form. An error without a type is malformed.
func toMethodError(callID string, me *gojmap.MethodError) (*MethodError, error) {
	out := &MethodError{CallID: callID}
	if err := rewire(me, out); err != nil {
		return nil, fmt.Errorf("%w: error response for call %s: %v", ErrMalformedResponse, callID, err)
	}
	if out.Type == "" {
		return nil, fmt.Errorf("%w: error response for call %s has no type", ErrMalformedResponse, callID)
	}
	return out, nil
}

func toSetError(se *gojmap.SetError) SetError {
	var out SetError
	if se == nil {
		return out
	}
	if err := rewire(se, &out); err != nil {
		out.Type = "unreadable"
		out.Description = err.Error()
	}
	return out
}

// rewire copies src into dst through JSON; both describe the same wire object.
func rewire(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
