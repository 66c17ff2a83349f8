package jmap

import (
	"context"
	"fmt"

	gojmap "git.sr.ht/~rockorager/go-jmap"
	"git.sr.ht/~rockorager/go-jmap/mail/identity"
	"git.sr.ht/~rockorager/go-jmap/mail/mailbox"
)

// Mailbox names looked up by ResolveMailboxes.
const (
	DraftsMailbox = "Drafts"
	SentMailbox   = "Sent"
)

// MailboxData holds the ids needed to file and send a draft.
type MailboxData struct {
	DraftsID   gojmap.ID
	SentID     gojmap.ID
	IdentityID gojmap.ID
}

// ResolveMailboxes looks up the Drafts and Sent mailboxes and the identity
// whose address equals username, in one request. Each mailbox name must
// match exactly one mailbox. The identity match is case-sensitive.
func (c *Client) ResolveMailboxes(ctx context.Context, acct gojmap.ID, username string) (*MailboxData, error) {
	req := newRequest()
	draftsCall := req.Invoke(&mailbox.Query{
		Account: acct,
		Filter:  &mailbox.FilterCondition{Name: DraftsMailbox},
	})
	sentCall := req.Invoke(&mailbox.Query{
		Account: acct,
		Filter:  &mailbox.FilterCondition{Name: SentMailbox},
	})
	identityCall := req.Invoke(&identity.Get{Account: acct})

	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mailbox query: %w", err)
	}

	draftsID, err := singleMailbox(resp, draftsCall, DraftsMailbox)
	if err != nil {
		return nil, err
	}
	sentID, err := singleMailbox(resp, sentCall, SentMailbox)
	if err != nil {
		return nil, err
	}

	identities, err := Get[*identity.GetResponse](resp, identityCall)
	if err != nil {
		return nil, fmt.Errorf("identity query: %w", err)
	}
	var identityID gojmap.ID
	for _, id := range identities.List {
		if id != nil && id.Email == username {
			identityID = id.ID
			break
		}
	}
	if identityID == "" {
		return nil, fmt.Errorf("%w for %s (%d identities)", ErrNoIdentity, username, len(identities.List))
	}

	return &MailboxData{
		DraftsID:   draftsID,
		SentID:     sentID,
		IdentityID: identityID,
	}, nil
}

func singleMailbox(resp *gojmap.Response, callID, name string) (gojmap.ID, error) {
	q, err := Get[*mailbox.QueryResponse](resp, callID)
	if err != nil {
		return "", fmt.Errorf("mailbox query %s: %w", name, err)
	}
	switch len(q.IDs) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrMailboxNotFound, name)
	case 1:
		return q.IDs[0], nil
	default:
		return "", fmt.Errorf("%w: %s (%d matches)", ErrAmbiguousMailbox, name, len(q.IDs))
	}
}
