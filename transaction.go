package eccentric

import (
	"bytes"
	"time"
)

// Transaction is the single mail exchange in progress on a session
type Transaction struct {
	ClientDomain string   // set by HELO/EHLO
	Sender       string   // reverse-path, empty until MAIL
	Recipients   []string // forward-paths in the order they were given

	body bytes.Buffer // raw body lines including their terminators
}

// NewTransaction returns an empty transaction
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Reset resets transaction to initial state
func (t *Transaction) Reset() {
	t.ClientDomain = ""
	t.Sender = ""
	t.Recipients = nil
	t.body.Reset()
}

// IsEmpty reports whether nothing has been declared yet
func (t *Transaction) IsEmpty() bool {
	return t.ClientDomain == "" && t.Sender == "" && len(t.Recipients) == 0 && t.body.Len() == 0
}

// AddRecipient appends rcpt to the transaction recipients
func (t *Transaction) AddRecipient(rcpt string) {
	t.Recipients = append(t.Recipients, rcpt)
}

// WriteLine appends one raw body line, terminator included
func (t *Transaction) WriteLine(line string) (int, error) {
	return t.body.WriteString(line)
}

// Body returns the accumulated body
func (t *Transaction) Body() string {
	return t.body.String()
}

// BodyLen returns the size of the accumulated body in bytes
func (t *Transaction) BodyLen() int {
	return t.body.Len()
}

// Snapshot copies the transaction into an Envelope which doesn't share
// memory with the transaction.
func (t *Transaction) Snapshot() *Envelope {
	env := &Envelope{
		ClientDomain: t.ClientDomain,
		Sender:       t.Sender,
		Body:         bytes.Clone(t.body.Bytes()),
		ReceivedAt:   time.Now(),
	}
	if len(t.Recipients) > 0 {
		env.Recipients = append([]string(nil), t.Recipients...)
	}
	return env
}

// Envelope is a read-only copy of a completed transaction handed to the
// delivery Handler.
type Envelope struct {
	SessionID    string
	ClientDomain string
	Sender       string
	Recipients   []string
	Body         []byte
	Received     string // trace header prepended on delivery, may be empty
	ReceivedAt   time.Time
}

// Message returns the body with the trace header prepended
func (e *Envelope) Message() []byte {
	msg := make([]byte, 0, len(e.Received)+len(e.Body))
	msg = append(msg, e.Received...)
	return append(msg, e.Body...)
}
