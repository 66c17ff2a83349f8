package jmap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	gojmap "git.sr.ht/~rockorager/go-jmap"
	"git.sr.ht/~rockorager/go-jmap/mail/email"
	"git.sr.ht/~rockorager/go-jmap/mail/thread"
)

// Selector picks the message to reply to from the emails of a thread.
// It reports false when nothing suitable is present.
type Selector func(emails []*email.Email) (*email.Email, bool)

// LastInThread returns the last email in server order. Servers usually
// list thread members oldest first, so this is probably the latest message,
// but nothing guarantees it.
func LastInThread(emails []*email.Email) (*email.Email, bool) {
	if len(emails) == 0 {
		return nil, false
	}
	return emails[len(emails)-1], true
}

// Newest returns the email with the latest receivedAt. Ties keep list
// order; a missing date sorts first.
func Newest(emails []*email.Email) (*email.Email, bool) {
	if len(emails) == 0 {
		return nil, false
	}
	best := emails[0]
	for _, e := range emails[1:] {
		if !receivedAt(e).Before(receivedAt(best)) {
			best = e
		}
	}
	return best, true
}

func receivedAt(e *email.Email) time.Time {
	if e == nil || e.ReceivedAt == nil {
		return time.Time{}
	}
	return *e.ReceivedAt
}

// DefaultSelector is the strategy used when none is named.
const DefaultSelector = "last"

var selectors = map[string]Selector{
	"last":   LastInThread,
	"newest": Newest,
}

// LookupSelector returns the selector registered under name.
// An empty name yields the default.
func LookupSelector(name string) (Selector, error) {
	if name == "" {
		name = DefaultSelector
	}
	sel, ok := selectors[name]
	if !ok {
		return nil, fmt.Errorf("unknown selection strategy %q (want one of %v)", name, SelectorNames())
	}
	return sel, nil
}

// SelectorNames lists the registered strategy names in sorted order.
func SelectorNames() []string {
	names := make([]string, 0, len(selectors))
	for name := range selectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ThreadEmails fetches every email of a thread in one request, resolving
// the email ids server-side through a back-reference.
func (c *Client) ThreadEmails(ctx context.Context, acct gojmap.ID, threadID string) ([]*email.Email, error) {
	req := newRequest()
	threadCall := req.Invoke(&thread.Get{
		Account: acct,
		IDs:     []gojmap.ID{gojmap.ID(threadID)},
	})
	emailCall := req.Invoke(&email.Get{
		Account: acct,
		ReferenceIDs: &gojmap.ResultReference{
			ResultOf: threadCall,
			Name:     "Thread/get",
			Path:     "/list/*/emailIds",
		},
	})

	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("thread query: %w", err)
	}

	threads, err := Get[*thread.GetResponse](resp, threadCall)
	if err != nil {
		return nil, fmt.Errorf("thread query: %w", err)
	}
	if slices.Contains(threads.NotFound, gojmap.ID(threadID)) {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	emails, err := Get[*email.GetResponse](resp, emailCall)
	if err != nil {
		return nil, fmt.Errorf("thread query: %w", err)
	}
	return emails.List, nil
}

// EmailThreadEmails fetches every email of the thread that contains emailID.
func (c *Client) EmailThreadEmails(ctx context.Context, acct gojmap.ID, emailID string) ([]*email.Email, error) {
	req := newRequest()
	seedCall := req.Invoke(&email.Get{
		Account:    acct,
		IDs:        []gojmap.ID{gojmap.ID(emailID)},
		Properties: []string{"threadId"},
	})
	threadCall := req.Invoke(&thread.Get{
		Account: acct,
		ReferenceIDs: &gojmap.ResultReference{
			ResultOf: seedCall,
			Name:     "Email/get",
			Path:     "/list/*/threadId",
		},
	})
	emailCall := req.Invoke(&email.Get{
		Account: acct,
		ReferenceIDs: &gojmap.ResultReference{
			ResultOf: threadCall,
			Name:     "Thread/get",
			Path:     "/list/*/emailIds",
		},
	})

	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("email thread query: %w", err)
	}

	seed, err := Get[*email.GetResponse](resp, seedCall)
	if err != nil {
		return nil, fmt.Errorf("email thread query: %w", err)
	}
	if len(seed.List) == 0 {
		return nil, fmt.Errorf("email %s: %w", emailID, ErrNotFound)
	}

	emails, err := Get[*email.GetResponse](resp, emailCall)
	if err != nil {
		return nil, fmt.Errorf("email thread query: %w", err)
	}
	return emails.List, nil
}

// FindTarget resolves targetID to the message to reply to. The id is tried
// as a thread id first and then as an email id.
func (c *Client) FindTarget(ctx context.Context, acct gojmap.ID, targetID string, sel Selector) (*email.Email, error) {
	if sel == nil {
		sel = LastInThread
	}

	emails, err := c.ThreadEmails(ctx, acct, targetID)
	if errors.Is(err, ErrNotFound) {
		c.logger.Debug("no thread with that id, trying as email id", "target_id", targetID)
		emails, err = c.EmailThreadEmails(ctx, acct, targetID)
	}
	if err != nil {
		return nil, err
	}

	target, ok := sel(emails)
	if !ok || target == nil {
		return nil, fmt.Errorf("%s: %w", targetID, ErrNotFound)
	}
	return target, nil
}
