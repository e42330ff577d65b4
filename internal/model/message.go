package model

import "time"

type Kind string

const (
	KindDM      Kind = "dm"
	KindReply   Kind = "reply"
	KindCounter Kind = "counter"
)

// CounterID is the id of the sentinel record that tracks id allocation.
const CounterID = "0"

// TimestampLayout matches the string form the Messages table has always used
// for its range key.
const TimestampLayout = "2006-01-02 15:04:05.000000"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Record is one row of the messages table: a *Counter, *DirectMessage or *Reply.
type Record interface {
	RecordID() string
	RecordTimestamp() string
	Kind() Kind
}

type Counter struct {
	Timestamp   string
	RecordCount uint64
}

func (c *Counter) RecordID() string        { return CounterID }
func (c *Counter) RecordTimestamp() string { return c.Timestamp }
func (c *Counter) Kind() Kind              { return KindCounter }

type DirectMessage struct {
	ID           string
	Timestamp    string
	To           string
	From         string
	Body         string
	QuickReplies map[string]string
}

func (m *DirectMessage) RecordID() string        { return m.ID }
func (m *DirectMessage) RecordTimestamp() string { return m.Timestamp }
func (m *DirectMessage) Kind() Kind              { return KindDM }

// ResolveQuickReply returns the full text registered under label, or label
// itself when the message offers no such quick reply.
func (m *DirectMessage) ResolveQuickReply(label string) string {
	if full, ok := m.QuickReplies[label]; ok {
		return full
	}
	return label
}

type Reply struct {
	ID        string
	Timestamp string
	ParentID  string
	To        string
	From      string
	Body      string
}

func (r *Reply) RecordID() string        { return r.ID }
func (r *Reply) RecordTimestamp() string { return r.Timestamp }
func (r *Reply) Kind() Kind              { return KindReply }

// Participants returns the sender and recipient of a message record.
func Participants(rec Record) (from, to string, ok bool) {
	switch m := rec.(type) {
	case *DirectMessage:
		return m.From, m.To, true
	case *Reply:
		return m.From, m.To, true
	default:
		return "", "", false
	}
}
