package jmap

import (
	"context"
	"errors"
	"fmt"
	"sort"

	gojmap "git.sr.ht/~rockorager/go-jmap"
	"git.sr.ht/~rockorager/go-jmap/mail/email"
	"git.sr.ht/~rockorager/go-jmap/mail/emailsubmission"
)

// Creation ids used inside the submission request.
const (
	DraftCreationID      = "draft"
	SubmissionCreationID = "sendIt"
)

// Submission is the server's reply to a SubmitDraft batch.
type Submission struct {
	Response *gojmap.Response

	// Call ids of the Email/set and EmailSubmission/set invocations. The
	// implicit Email/set run by onSuccessUpdateEmail shares SubmitCall.
	DraftCall  string
	SubmitCall string
}

// SubmissionRequest builds the batch that creates draft and submits it.
// On successful submission the server drops the draft keyword and moves
// the email from Drafts to Sent.
func SubmissionRequest(acct gojmap.ID, draft *email.Email, boxes *MailboxData) (req *gojmap.Request, draftCall, submitCall string) {
	req = newRequest()
	draftCall = req.Invoke(&email.Set{
		Account: acct,
		Create:  map[gojmap.ID]*email.Email{DraftCreationID: draft},
	})
	submitCall = req.Invoke(&emailsubmission.Set{
		Account: acct,
		Create: map[gojmap.ID]*emailsubmission.EmailSubmission{
			SubmissionCreationID: {
				EmailID:    "#" + DraftCreationID,
				IdentityID: boxes.IdentityID,
			},
		},
		OnSuccessUpdateEmail: map[gojmap.ID]gojmap.Patch{
			"#" + SubmissionCreationID: {
				"keywords/" + KeywordDraft:             nil,
				"mailboxIds/" + string(boxes.DraftsID): nil,
				"mailboxIds/" + string(boxes.SentID):   true,
			},
		},
	})
	return req, draftCall, submitCall
}

// SubmitDraft creates draft in the Drafts mailbox and submits it for delivery.
// Per-object failures are reported in the response, not as an error; see
// Submission.Problems.
func (c *Client) SubmitDraft(ctx context.Context, acct gojmap.ID, draft *email.Email, boxes *MailboxData) (*Submission, error) {
	req, draftCall, submitCall := SubmissionRequest(acct, draft, boxes)
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return &Submission{Response: resp, DraftCall: draftCall, SubmitCall: submitCall}, nil
}

// Problems describes every failure the server reported. An empty result
// means the draft was created and sent.
func (s *Submission) Problems() []string {
	if s == nil || s.Response == nil {
		return []string{"no submission response"}
	}
	var problems []string

	report := func(name string, err error) {
		var me *MethodError
		if errors.As(err, &me) {
			problems = append(problems, me.Error())
			return
		}
		problems = append(problems, fmt.Sprintf("%s: %v", name, err))
	}

	drafts, err := Get[*email.SetResponse](s.Response, s.DraftCall)
	if err != nil {
		report("Email/set", err)
	} else if se, ok := drafts.NotCreated[DraftCreationID]; ok {
		problems = append(problems, fmt.Sprintf("Email/set: %s not created: %s", DraftCreationID, toSetError(se)))
	}

	sub, err := Get[*emailsubmission.SetResponse](s.Response, s.SubmitCall)
	if err != nil {
		report("EmailSubmission/set", err)
		return problems
	}
	if se, ok := sub.NotCreated[SubmissionCreationID]; ok {
		problems = append(problems, fmt.Sprintf("EmailSubmission/set: %s not created: %s", SubmissionCreationID, toSetError(se)))
	}

	update, err := Get[*email.SetResponse](s.Response, s.SubmitCall)
	if err != nil {
		return problems
	}
	ids := make([]string, 0, len(update.NotUpdated))
	for id := range update.NotUpdated {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		problems = append(problems, fmt.Sprintf("Email/set: %s not updated after submission: %s", id, toSetError(update.NotUpdated[gojmap.ID(id)])))
	}
	return problems
}
