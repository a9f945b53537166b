package domain

import (
	"fmt"
	"strings"
)

// ReplySubjectPrefix is prepended to the inbound subject on replies.
const ReplySubjectPrefix = "Re: "

// Message is an inbound email reduced to what the responder needs.
type Message struct {
	UID       uint32
	MessageID string // without angle brackets
	From      string // bare address, e.g. "jane@example.com"
	Subject   string
	Body      string
}

// Query renders the message as the retrieval query.
func (m Message) Query() string {
	return fmt.Sprintf("Subject: %s, body:%s", m.Subject, m.Body)
}

// Reply is an outbound answer to a Message.
type Reply struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// NewReply addresses answer back to the sender of m.
func NewReply(m Message, answer string) Reply {
	return Reply{
		To:        m.From,
		Subject:   ReplySubjectPrefix + m.Subject,
		Body:      answer,
		InReplyTo: strings.TrimSpace(m.MessageID),
	}
}
