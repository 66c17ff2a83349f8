package jmap

import (
	"fmt"

	gojmap "git.sr.ht/~rockorager/go-jmap"
)

// Capability URNs sent in the "using" list. Method types add the ones they
// need when invoked; core is always present.
const (
	CapabilityCore       gojmap.URI = "urn:ietf:params:jmap:core"
	CapabilityMail       gojmap.URI = "urn:ietf:params:jmap:mail"
	CapabilitySubmission gojmap.URI = "urn:ietf:params:jmap:submission"
)

// KeywordDraft marks an email as a draft.
const KeywordDraft = "$draft"

// MailAccount returns the primary mail account id of the session.
func MailAccount(s *gojmap.Session) (gojmap.ID, error) {
	if s == nil || s.APIURL == "" {
		return "", fmt.Errorf("session: %w: apiUrl", ErrMissingField)
	}
	id := s.PrimaryAccounts[CapabilityMail]
	if id == "" {
		return "", fmt.Errorf("session: %w: primaryAccounts[%s]", ErrMissingField, CapabilityMail)
	}
	return id, nil
}

func newRequest() *gojmap.Request {
	return &gojmap.Request{Using: []gojmap.URI{CapabilityCore}}
}

// Get returns the arguments of the response to callID whose decoded type
// is T. One call id can carry several responses of different types. An
// "error" response for callID is returned as *MethodError.
func Get[T any](resp *gojmap.Response, callID string) (T, error) {
	var zero T
	var methodErr *gojmap.MethodError
	for _, inv := range resp.Responses {
		if inv == nil || inv.CallID != callID {
			continue
		}
		if args, ok := inv.Args.(T); ok {
			return args, nil
		}
		if me, ok := inv.Args.(*gojmap.MethodError); ok && methodErr == nil {
			methodErr = me
		}
	}
	if methodErr != nil {
		me, err := toMethodError(callID, methodErr)
		if err != nil {
			return zero, err
		}
		return zero, me
	}
	return zero, fmt.Errorf("%w: no %T response for call %s", ErrMalformedResponse, zero, callID)
}
