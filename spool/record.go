package spool

import (
	"time"

	"github.com/go-errors/errors"
	"github.com/tinylib/msgp/msgp"
)

// Record is one spooled message as stored on disk
type Record struct {
	ID           string
	SessionID    string
	ClientDomain string
	Sender       string
	Recipients   []string
	MessageID    string // Message-ID header of the body, if it had one
	ReceivedAt   time.Time
	Message      []byte // Received header followed by the body
}

var (
	_ msgp.Marshaler   = (*Record)(nil)
	_ msgp.Unmarshaler = (*Record)(nil)
	_ msgp.Sizer       = (*Record)(nil)
)

// record field keys
const (
	keyID           = "id"
	keySessionID    = "session"
	keyClientDomain = "helo"
	keySender       = "from"
	keyRecipients   = "to"
	keyMessageID    = "msgid"
	keyReceivedAt   = "at"
	keyMessage      = "data"

	recordFields = 8
)

// MarshalMsg appends the MessagePack encoding of r to b
func (r *Record) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, r.Msgsize())
	o = msgp.AppendMapHeader(o, recordFields)
	o = msgp.AppendString(o, keyID)
	o = msgp.AppendString(o, r.ID)
	o = msgp.AppendString(o, keySessionID)
	o = msgp.AppendString(o, r.SessionID)
	o = msgp.AppendString(o, keyClientDomain)
	o = msgp.AppendString(o, r.ClientDomain)
	o = msgp.AppendString(o, keySender)
	o = msgp.AppendString(o, r.Sender)
	o = msgp.AppendString(o, keyRecipients)
	o = msgp.AppendArrayHeader(o, uint32(len(r.Recipients)))
	for _, rcpt := range r.Recipients {
		o = msgp.AppendString(o, rcpt)
	}
	o = msgp.AppendString(o, keyMessageID)
	o = msgp.AppendString(o, r.MessageID)
	o = msgp.AppendString(o, keyReceivedAt)
	o = msgp.AppendTime(o, r.ReceivedAt)
	o = msgp.AppendString(o, keyMessage)
	o = msgp.AppendBytes(o, r.Message)
	return o, nil
}

// UnmarshalMsg decodes r from b and returns the remaining bytes. Unknown keys
// are skipped so records written by newer versions still load.
func (r *Record) UnmarshalMsg(b []byte) ([]byte, error) {
	fields, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, errors.Wrap(err, 0)
	}
	for ; fields > 0; fields-- {
		var key []byte
		key, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return b, errors.Wrap(err, 0)
		}
		switch string(key) {
		case keyID:
			r.ID, b, err = msgp.ReadStringBytes(b)
		case keySessionID:
			r.SessionID, b, err = msgp.ReadStringBytes(b)
		case keyClientDomain:
			r.ClientDomain, b, err = msgp.ReadStringBytes(b)
		case keySender:
			r.Sender, b, err = msgp.ReadStringBytes(b)
		case keyRecipients:
			b, err = r.unmarshalRecipients(b)
		case keyMessageID:
			r.MessageID, b, err = msgp.ReadStringBytes(b)
		case keyReceivedAt:
			r.ReceivedAt, b, err = msgp.ReadTimeBytes(b)
		case keyMessage:
			r.Message, b, err = msgp.ReadBytesBytes(b, r.Message[:0])
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, errors.WrapPrefix(err, "field "+string(key), 0)
		}
	}
	return b, nil
}

func (r *Record) unmarshalRecipients(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	r.Recipients = make([]string, n)
	for i := range r.Recipients {
		r.Recipients[i], b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// Msgsize returns an upper bound of the encoded size of r
func (r *Record) Msgsize() int {
	s := msgp.MapHeaderSize +
		8*msgp.StringPrefixSize + len(keyID) + len(keySessionID) + len(keyClientDomain) + len(keySender) +
		len(keyRecipients) + len(keyMessageID) + len(keyReceivedAt) + len(keyMessage) +
		msgp.StringPrefixSize + len(r.ID) +
		msgp.StringPrefixSize + len(r.SessionID) +
		msgp.StringPrefixSize + len(r.ClientDomain) +
		msgp.StringPrefixSize + len(r.Sender) +
		msgp.ArrayHeaderSize +
		msgp.StringPrefixSize + len(r.MessageID) +
		msgp.TimeSize +
		msgp.BytesPrefixSize + len(r.Message)
	for _, rcpt := range r.Recipients {
		s += msgp.StringPrefixSize + len(rcpt)
	}
	return s
}
