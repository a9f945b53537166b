package mailbox

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // non-UTF-8 part decoding
	"github.com/emersion/go-message/mail"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

const maxPartSize = 1 << 20

// ParseMessage reads a raw RFC 5322 message. The body is the first inline
// text/plain part, falling back to the first inline text/html part.
// Attachments are skipped.
func ParseMessage(r io.Reader) (domain.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return domain.Message{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var out domain.Message
	if out.Subject, err = mr.Header.Subject(); err != nil {
		out.Subject = mr.Header.Get("Subject")
	}
	out.MessageID, _ = mr.Header.MessageID()

	from, err := mr.Header.AddressList("From")
	if err != nil || len(from) == 0 {
		return domain.Message{}, fmt.Errorf("message %q: no usable From address", out.Subject)
	}
	out.From = from[0].Address

	body, err := extractBody(mr)
	if err != nil {
		return domain.Message{}, fmt.Errorf("message %q: %w", out.Subject, err)
	}
	out.Body = body
	return out, nil
}

func extractBody(mr *mail.Reader) (string, error) {
	var html string
	haveHTML := false

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", fmt.Errorf("next part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok || isAttachment(h) {
			continue
		}

		ct, _, err := h.ContentType()
		if err != nil {
			ct = "text/plain"
		}
		switch ct {
		case "text/plain":
			return readPart(p.Body)
		case "text/html":
			if !haveHTML {
				if html, err = readPart(p.Body); err != nil {
					return "", err
				}
				haveHTML = true
			}
		}
	}

	if haveHTML {
		return html, nil
	}
	return "", nil
}

// isAttachment catches inline parts that still carry a filename, which some
// clients send for attached .txt files.
func isAttachment(h *mail.InlineHeader) bool {
	disp, params, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	return strings.EqualFold(disp, "attachment") || params["filename"] != ""
}

func readPart(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxPartSize))
	if err != nil {
		return "", fmt.Errorf("read part: %w", err)
	}
	return string(b), nil
}
