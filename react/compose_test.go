package react

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	jmapmail "git.sr.ht/~rockorager/go-jmap/mail"
	"git.sr.ht/~rockorager/go-jmap/mail/email"

	"github.com/rgabriel/jmap-react/jmap"
)

var (
	testBoxes  = &jmap.MailboxData{DraftsID: "D1", SentID: "S1", IdentityID: "I1"}
	testTarget = &email.Email{
		ID:        "E2",
		ThreadID:  "T1",
		Subject:   "Lunch?",
		MessageID: []string{"m2@x"},
		From:      []*jmapmail.Address{{Name: "Bob", Email: "bob@x.com"}},
	}
)

func text(s string) *string { return &s }

func TestComposePlain(t *testing.T) {
	draft, err := Compose(testTarget, testBoxes, "me@x.com", "+1", nil)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if draft.BodyStructure != nil {
		t.Errorf("plain reaction must not have bodyStructure: %+v", draft.BodyStructure)
	}
	if len(draft.TextBody) != 1 {
		t.Fatalf("textBody parts = %d, want 1", len(draft.TextBody))
	}
	part := draft.TextBody[0]
	if part.Disposition != "reaction" || part.PartID != "body" || part.Type != "text/plain" {
		t.Errorf("text part = %+v", part)
	}
	if v := draft.BodyValues["body"]; v == nil || v.Value != "+1" {
		t.Errorf("body value = %+v", v)
	}
	if len(draft.BodyValues) != 1 {
		t.Errorf("bodyValues = %v, want only body", draft.BodyValues)
	}

	if len(draft.From) != 1 || draft.From[0].Email != "me@x.com" {
		t.Errorf("from = %v", draft.From)
	}
	if len(draft.To) != 1 || draft.To[0].Email != "bob@x.com" {
		t.Errorf("to = %v", draft.To)
	}
	if draft.Subject != "Lunch?" {
		t.Errorf("subject = %q", draft.Subject)
	}
	if !draft.Keywords["$draft"] || len(draft.Keywords) != 1 {
		t.Errorf("keywords = %v", draft.Keywords)
	}
	if !draft.MailboxIDs["D1"] || len(draft.MailboxIDs) != 1 {
		t.Errorf("mailboxIds = %v", draft.MailboxIDs)
	}
	if len(draft.InReplyTo) != 1 || draft.InReplyTo[0] != "m2@x" {
		t.Errorf("inReplyTo = %v", draft.InReplyTo)
	}
	if len(draft.References) != 1 || draft.References[0] != "m2@x" {
		t.Errorf("references = %v", draft.References)
	}
}

func TestComposeWithMessage(t *testing.T) {
	draft, err := Compose(testTarget, testBoxes, "me@x.com", "+1", text("see you at noon"))
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if draft.TextBody != nil {
		t.Errorf("multipart reaction must not have textBody: %+v", draft.TextBody)
	}
	bs := draft.BodyStructure
	if bs == nil || bs.Type != "multipart/mixed" {
		t.Fatalf("bodyStructure = %+v", bs)
	}
	if len(bs.SubParts) != 2 {
		t.Fatalf("subParts = %d, want 2", len(bs.SubParts))
	}
	if p := bs.SubParts[0]; p.PartID != "body" || p.Disposition != "reaction" {
		t.Errorf("first part = %+v, want reaction part", p)
	}
	if p := bs.SubParts[1]; p.PartID != "normalBody" || p.Type != "text/plain" || p.Disposition != "" {
		t.Errorf("second part = %+v, want plain message part", p)
	}
	if v := draft.BodyValues["normalBody"]; v == nil || v.Value != "see you at noon" {
		t.Errorf("normalBody = %+v", v)
	}
	if v := draft.BodyValues["body"]; v == nil || v.Value != "+1" {
		t.Errorf("body = %+v", v)
	}
}

func TestComposeEmptyMessageIsMultipart(t *testing.T) {
	draft, err := Compose(testTarget, testBoxes, "me@x.com", "+1", text(""))
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if draft.BodyStructure == nil || len(draft.BodyStructure.SubParts) != 2 {
		t.Fatalf("bodyStructure = %+v, want two parts", draft.BodyStructure)
	}
	if draft.TextBody != nil {
		t.Errorf("textBody = %+v, want none", draft.TextBody)
	}
	v, ok := draft.BodyValues["normalBody"]
	if !ok || v == nil || v.Value != "" {
		t.Errorf("normalBody = %+v (present %v), want empty value", v, ok)
	}
}

func TestComposeEncodesExactlyOneBodyShape(t *testing.T) {
	for _, msg := range []*string{nil, text(""), text("hello")} {
		draft, err := Compose(testTarget, testBoxes, "me@x.com", "+1", msg)
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		data, _ := json.Marshal(draft)
		s := string(data)
		hasText := strings.Contains(s, `"textBody"`)
		hasStructure := strings.Contains(s, `"bodyStructure"`)
		if hasText == hasStructure {
			t.Errorf("message %v: textBody=%v bodyStructure=%v in %s", msg, hasText, hasStructure, s)
		}
	}
}

func TestComposeReferences(t *testing.T) {
	target := *testTarget
	target.References = []string{"m0@x", "m1@x", "m2@x"}

	draft, err := Compose(&target, testBoxes, "me@x.com", "+1", nil)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	want := []string{"m0@x", "m1@x", "m2@x"}
	if strings.Join(draft.References, " ") != strings.Join(want, " ") {
		t.Errorf("references = %v, want %v", draft.References, want)
	}
}

func TestComposeErrors(t *testing.T) {
	tests := []struct {
		name    string
		target  *email.Email
		wantErr error
	}{
		{name: "no target", target: nil, wantErr: ErrNoTarget},
		{name: "no sender", target: &email.Email{ID: "E1"}, wantErr: ErrNoSender},
		{name: "empty sender", target: &email.Email{ID: "E1", From: []*jmapmail.Address{{Name: "Ghost"}}}, wantErr: ErrNoSender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := Compose(tt.target, testBoxes, "me@x.com", "+1", nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if draft != nil {
				t.Error("expected nil draft on error")
			}
		})
	}
}
