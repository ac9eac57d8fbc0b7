package extract

import (
	"strings"
	"testing"
)

const plainMessage = "Message-Id: <abc123@mail.acme.com>\r\n" +
	"From: \"The Boss\" <boss@acme.com>\r\n" +
	"To: team@acme.com\r\n" +
	"Subject: Q3 planning\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please review   the attached\r\nplan before Friday.\r\n"

const attachmentMessage = "From: reports@acme.com\r\n" +
	"To: team@acme.com\r\n" +
	"Subject: Weekly report\r\n" +
	"Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Report attached.\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--BOUNDARY--\r\n"

func TestFromRawPlainMessage(t *testing.T) {
	msg, err := FromRaw([]byte(plainMessage))
	if err != nil {
		t.Fatalf("FromRaw failed: %v", err)
	}

	if msg.ID != "abc123@mail.acme.com" {
		t.Errorf("unexpected ID %q", msg.ID)
	}
	if msg.From == nil || *msg.From != "boss@acme.com" {
		t.Errorf("unexpected From %v", msg.From)
	}
	if msg.FromName == nil || *msg.FromName != "The Boss" {
		t.Errorf("unexpected FromName %v", msg.FromName)
	}
	if msg.To == nil || *msg.To != "team@acme.com" {
		t.Errorf("unexpected To %v", msg.To)
	}
	if msg.Subject == nil || *msg.Subject != "Q3 planning" {
		t.Errorf("unexpected Subject %v", msg.Subject)
	}
	if msg.Snippet == nil || !strings.HasPrefix(*msg.Snippet, "Please review the attached plan") {
		t.Errorf("unexpected Snippet %v", msg.Snippet)
	}
	if msg.HasAttachment == nil || *msg.HasAttachment {
		t.Errorf("expected hasAttachment false, got %v", msg.HasAttachment)
	}

	// Flags a raw payload cannot carry stay absent.
	if msg.IsUnread != nil || msg.IsStarred != nil || msg.IsImportant != nil {
		t.Error("mailbox flags should be absent for raw messages")
	}
}

func TestFromRawAttachment(t *testing.T) {
	msg, err := FromRaw([]byte(attachmentMessage))
	if err != nil {
		t.Fatalf("FromRaw failed: %v", err)
	}
	if msg.HasAttachment == nil || !*msg.HasAttachment {
		t.Errorf("expected hasAttachment true, got %v", msg.HasAttachment)
	}
	if msg.FromName != nil {
		t.Errorf("expected no FromName for bare address, got %q", *msg.FromName)
	}
}

func TestMakeSnippetTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := makeSnippet(long)
	if len([]rune(got)) != snippetLimit {
		t.Errorf("expected snippet of %d runes, got %d", snippetLimit, len([]rune(got)))
	}
}
