package react

import (
	"bytes"
	"fmt"
	"time"

	jmapmail "git.sr.ht/~rockorager/go-jmap/mail"
	"git.sr.ht/~rockorager/go-jmap/mail/email"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Preview renders draft as the RFC 5322 message the server would build
// from it.
func Preview(draft *email.Email) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", toMailAddresses(draft.From))
	h.SetAddressList("To", toMailAddresses(draft.To))
	h.SetSubject(draft.Subject)
	if len(draft.InReplyTo) > 0 {
		h.SetMsgIDList("In-Reply-To", draft.InReplyTo)
	}
	if len(draft.References) > 0 {
		h.SetMsgIDList("References", draft.References)
	}

	if draft.BodyStructure != nil {
		h.SetContentType(draft.BodyStructure.Type, nil)
		w, err := message.CreateWriter(&buf, h.Header)
		if err != nil {
			return nil, fmt.Errorf("failed to create message writer: %w", err)
		}
		for _, part := range draft.BodyStructure.SubParts {
			if err := writePart(w, part, draft.BodyValues); err != nil {
				w.Close()
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close message: %w", err)
		}
		return buf.Bytes(), nil
	}

	if len(draft.TextBody) != 1 {
		return nil, fmt.Errorf("draft has %d text body parts, want 1", len(draft.TextBody))
	}
	part := draft.TextBody[0]
	if part == nil {
		return nil, fmt.Errorf("draft text body part is nil")
	}
	setPartHeader(&h.Header, part)
	w, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write([]byte(bodyValue(draft.BodyValues, part.PartID))); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(w *message.Writer, part *email.BodyPart, values map[string]*email.BodyValue) error {
	var ph message.Header
	setPartHeader(&ph, part)
	pw, err := w.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create part %s: %w", part.PartID, err)
	}
	if _, err := pw.Write([]byte(bodyValue(values, part.PartID))); err != nil {
		pw.Close()
		return fmt.Errorf("failed to write part %s: %w", part.PartID, err)
	}
	return pw.Close()
}

func bodyValue(values map[string]*email.BodyValue, partID string) string {
	if v := values[partID]; v != nil {
		return v.Value
	}
	return ""
}

func setPartHeader(h *message.Header, part *email.BodyPart) {
	h.SetContentType(part.Type, map[string]string{"charset": "utf-8"})
	if part.Disposition != "" {
		h.SetContentDisposition(part.Disposition, nil)
	}
}

func toMailAddresses(addrs []*jmapmail.Address) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		out = append(out, &mail.Address{Name: a.Name, Address: a.Email})
	}
	return out
}
