package react

import (
	"errors"

	gojmap "git.sr.ht/~rockorager/go-jmap"
	jmapmail "git.sr.ht/~rockorager/go-jmap/mail"
	"git.sr.ht/~rockorager/go-jmap/mail/email"

	"github.com/rgabriel/jmap-react/jmap"
)

// Part ids and the disposition used for reaction parts.
const (
	ReactionPartID      = "body"
	MessagePartID       = "normalBody"
	ReactionDisposition = "reaction"
)

var (
	// ErrNoTarget is returned when no message was resolved to reply to.
	ErrNoTarget = errors.New("no target message resolved")
	// ErrNoSender is returned when the target message has no sender address.
	ErrNoSender = errors.New("target message has no sender address")
)

// Compose builds the reply draft for target. Without a message the draft
// has a single reaction text part; with one, even an empty one, it is
// multipart/mixed with the reaction part followed by the message part.
func Compose(target *email.Email, boxes *jmap.MailboxData, username, reaction string, message *string) (*email.Email, error) {
	if target == nil {
		return nil, ErrNoTarget
	}
	if len(target.From) == 0 || target.From[0] == nil || target.From[0].Email == "" {
		return nil, ErrNoSender
	}

	reactionPart := &email.BodyPart{PartID: ReactionPartID, Type: "text/plain", Disposition: ReactionDisposition}

	draft := &email.Email{
		From:       []*jmapmail.Address{{Email: username}},
		To:         []*jmapmail.Address{{Email: target.From[0].Email}},
		Subject:    target.Subject,
		Keywords:   map[string]bool{jmap.KeywordDraft: true},
		MailboxIDs: map[gojmap.ID]bool{boxes.DraftsID: true},
		BodyValues: map[string]*email.BodyValue{
			ReactionPartID: {Value: reaction},
		},
		InReplyTo:  target.MessageID,
		References: references(target),
	}

	if message != nil {
		draft.BodyValues[MessagePartID] = &email.BodyValue{Value: *message}
		draft.BodyStructure = &email.BodyPart{
			Type: "multipart/mixed",
			SubParts: []*email.BodyPart{
				reactionPart,
				{PartID: MessagePartID, Type: "text/plain"},
			},
		}
	} else {
		draft.TextBody = []*email.BodyPart{reactionPart}
	}

	return draft, nil
}

// references returns the target's references followed by its own message
// ids, without duplicates.
func references(target *email.Email) []string {
	seen := make(map[string]bool, len(target.References)+len(target.MessageID))
	var refs []string
	for _, list := range [][]string{target.References, target.MessageID} {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			refs = append(refs, id)
		}
	}
	return refs
}
