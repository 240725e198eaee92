package mail

import (
	"bytes"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/go-errors/errors"
)

// maxFoldedLineLength is the length after which header lines are folded
// https://tools.ietf.org/html/rfc5322#section-2.1.1
const maxFoldedLineLength = 78

var rxReduceWS = regexp.MustCompile(`[ \t]+`)

// ReadHeader parses the header section of a raw message body. The body is not
// required to be a valid message, a body without headers returns an error.
func ReadHeader(body []byte) (textproto.MIMEHeader, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return textproto.MIMEHeader(msg.Header), nil
}

// MessageID returns the Message-ID header value without the angle brackets,
// empty string if the header is missing
func MessageID(h textproto.MIMEHeader) string {
	id := strings.TrimSpace(h.Get("Message-Id"))
	return strings.TrimSuffix(strings.TrimPrefix(id, "<"), ">")
}

/*
FoldHeader folds a single unfolded header line so that no line is longer than 78
characters where a space allows it. Runs of whitespace are reduced to a single
space, line breaks in the input are dropped. Continuation lines start with a tab.
The result carries no trailing CRLF.
*/
func FoldHeader(header []byte) []byte {
	raw := bytes.ReplaceAll(header, []byte{'\r'}, nil)
	raw = bytes.ReplaceAll(raw, []byte{'\n'}, nil)
	raw = rxReduceWS.ReplaceAll(raw, []byte{' '})
	if len(raw) <= maxFoldedLineLength {
		return raw
	}

	folded := make([]byte, 0, len(raw)+len(raw)/maxFoldedLineLength*3)
	lineStart := 0
	lastSpace := -1
	for i, c := range raw {
		if c == ' ' && i > lineStart {
			lastSpace = i
		}
		if i-lineStart >= maxFoldedLineLength && lastSpace > lineStart {
			folded = append(folded, raw[lineStart:lastSpace]...)
			folded = append(folded, '\r', '\n', '\t')
			lineStart = lastSpace + 1
			lastSpace = -1
		}
	}
	return append(folded, raw[lineStart:]...)
}
