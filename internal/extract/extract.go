// Package extract builds classification records from raw mail payloads.
// It is one producer of domain.Message; live list scans feed the engine
// through other extractors, so the engine never depends on this package.
package extract

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/inboxkit/kestrel/internal/domain"
)

// snippetLimit caps the derived snippet length, in runes.
const snippetLimit = 160

// FromRaw parses an RFC 822 message and extracts the fields the engine can
// test. Flags a raw payload cannot carry (isUnread, isStarred, isImportant)
// are left absent; the engine's unknown-as-false policy covers them.
func FromRaw(raw []byte) (*domain.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := &domain.Message{
		ID: strings.Trim(env.GetHeader("Message-Id"), "<>"),
	}

	if from := env.GetHeader("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			msg.From = domain.String(addr.Address)
			if addr.Name != "" {
				msg.FromName = domain.String(addr.Name)
			}
		} else {
			// Keep the raw header; a malformed sender is still matchable.
			msg.From = domain.String(from)
		}
	}

	if to := env.GetHeader("To"); to != "" {
		if addrs, err := mail.ParseAddressList(to); err == nil && len(addrs) > 0 {
			msg.To = domain.String(addrs[0].Address)
		} else {
			msg.To = domain.String(to)
		}
	}

	if subject := env.GetHeader("Subject"); subject != "" {
		msg.Subject = domain.String(subject)
	}

	if snippet := makeSnippet(env.Text); snippet != "" {
		msg.Snippet = domain.String(snippet)
	}

	msg.HasAttachment = domain.Bool(len(env.Attachments) > 0)

	return msg, nil
}

// makeSnippet collapses whitespace in the text body and truncates it.
func makeSnippet(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	joined := strings.Join(fields, " ")
	runes := []rune(joined)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit])
	}
	return joined
}
