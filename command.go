package eccentric

import (
	"strings"
)

// Verb is the kind of a decoded command line.
type Verb int

const (
	// VerbUnrecognized is produced for every line whose keyword is not known
	VerbUnrecognized Verb = iota
	VerbGreet             // EHLO or HELO
	VerbMailFrom
	VerbRcptTo
	VerbStartData
	VerbReset
	VerbNoop
	VerbVerify
	VerbQuit

	verbCount
)

func (v Verb) String() string {
	switch v {
	case VerbGreet:
		return "GREET"
	case VerbMailFrom:
		return "MAIL"
	case VerbRcptTo:
		return "RCPT"
	case VerbStartData:
		return "DATA"
	case VerbReset:
		return "RSET"
	case VerbNoop:
		return "NOOP"
	case VerbVerify:
		return "VRFY"
	case VerbQuit:
		return "QUIT"
	default:
		return "UNRECOGNIZED"
	}
}

// keywords maps upper-cased command keywords to their verb. HELO and EHLO are
// the two historical spellings of the greeting and have the same effect.
var keywords = map[string]Verb{
	"HELO": VerbGreet,
	"EHLO": VerbGreet,
	"MAIL": VerbMailFrom,
	"RCPT": VerbRcptTo,
	"DATA": VerbStartData,
	"RSET": VerbReset,
	"NOOP": VerbNoop,
	"VRFY": VerbVerify,
	"QUIT": VerbQuit,
}

// pathPrefixes are stripped from the argument of MAIL and RCPT so that
// "MAIL FROM:<a@b>" carries the reverse-path "<a@b>"
var pathPrefixes = map[Verb]string{
	VerbMailFrom: "FROM:",
	VerbRcptTo:   "TO:",
}

// Command is a single decoded client line
type Command struct {
	Verb    Verb
	Keyword string // keyword as the client spelled it
	Arg     string // argument, empty when none was given

	line string
}

/*
DecodeCommand decodes one client line into a Command. It never fails: lines
that can't be matched decode to VerbUnrecognized so the session can always
answer with a status line instead of aborting.

The keyword is the text before the first space. The argument is everything
after that single space, not trimmed any further. A missing argument is an
empty string, never an error.
*/
func DecodeCommand(line string) Command {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	keyword, arg, _ := strings.Cut(line, " ")
	cmd := Command{
		Verb:    VerbUnrecognized,
		Keyword: keyword,
		line:    line,
	}
	verb, ok := keywords[strings.ToUpper(keyword)]
	if !ok {
		return cmd
	}
	cmd.Verb = verb
	cmd.Arg = arg
	if prefix, ok := pathPrefixes[verb]; ok {
		cmd.Arg = trimPrefixFold(arg, prefix)
	}
	return cmd
}

// trimPrefixFold removes prefix from s when s starts with it, ignoring case
func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}

/*
String returns back the original line without the line terminator
*/
func (cmd Command) String() string {
	return cmd.line
}
