package react

import (
	"context"
	"fmt"
	"log/slog"

	gojmap "git.sr.ht/~rockorager/go-jmap"
	"git.sr.ht/~rockorager/go-jmap/mail/email"

	"github.com/rgabriel/jmap-react/jmap"
)

// Backend is the set of JMAP round trips a reaction needs. *jmap.Client
// satisfies it.
type Backend interface {
	Session(ctx context.Context) (*gojmap.Session, error)
	FindTarget(ctx context.Context, acct gojmap.ID, targetID string, sel jmap.Selector) (*email.Email, error)
	ResolveMailboxes(ctx context.Context, acct gojmap.ID, username string) (*jmap.MailboxData, error)
	SubmitDraft(ctx context.Context, acct gojmap.ID, draft *email.Email, boxes *jmap.MailboxData) (*jmap.Submission, error)
}

// Request describes one reaction to send.
type Request struct {
	TargetID string
	Reaction string
	// Message is sent as a second text part when non-nil, even if empty.
	Message *string
	// Selector picks the message within the thread; nil means jmap.LastInThread.
	Selector jmap.Selector
	DryRun   bool
}

// Result reports what a reaction did.
type Result struct {
	Target   *email.Email
	Draft    *email.Email
	Preview  []byte
	Response *gojmap.Response
	// Problems holds per-operation failures reported inside Response.
	Problems []string
}

// Service sends reactions on behalf of one user.
type Service struct {
	backend  Backend
	username string
	logger   *slog.Logger
}

// NewService creates a service sending as username.
func NewService(backend Backend, username string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, username: username, logger: logger}
}

// React resolves the session, the target message and the mailboxes, then
// composes the reply and submits it. A failed target lookup is logged and
// tolerated until composition, which then fails with ErrNoTarget.
func (s *Service) React(ctx context.Context, req Request) (*Result, error) {
	session, err := s.backend.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	acct, err := jmap.MailAccount(session)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("using account", "account_id", acct, "api_url", session.APIURL)

	target, err := s.backend.FindTarget(ctx, acct, req.TargetID, req.Selector)
	if err != nil {
		s.logger.Warn("can't find a message for that id", "target_id", req.TargetID, "error", err)
		target = nil
	} else {
		s.logger.Info("replying to message", "email_id", target.ID, "subject", target.Subject)
	}

	boxes, err := s.backend.ResolveMailboxes(ctx, acct, s.username)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mailboxes: %w", err)
	}

	draft, err := Compose(target, boxes, s.username, req.Reaction, req.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to compose reply to %s: %w", req.TargetID, err)
	}

	result := &Result{Target: target, Draft: draft}

	if req.DryRun {
		preview, err := Preview(draft)
		if err != nil {
			return nil, fmt.Errorf("failed to render preview: %w", err)
		}
		result.Preview = preview
		s.logger.Info("dry run, not submitting", "to", draft.To[0].Email)
		return result, nil
	}

	sub, err := s.backend.SubmitDraft(ctx, acct, draft, boxes)
	if err != nil {
		return nil, err
	}
	result.Response = sub.Response
	result.Problems = sub.Problems()
	for _, p := range result.Problems {
		s.logger.Warn("server reported a failure", "problem", p)
	}
	return result, nil
}
