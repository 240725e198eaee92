package mail

import (
	"strings"

	"github.com/go-errors/errors"
)

// Address is a mailbox as given in a reverse or forward path, without the angle brackets.
// Empty Address is the null reverse-path "<>".
type Address string

// email address size limits
const (
	maxEmailLength      = 256 // max full email address length
	maxLocalPartLength  = 64  // max length of user/local part of email address as per https://tools.ietf.org/html/rfc5321#section-4.5.3.1.1
	maxDomainPartLength = 255 // max length of domain part of email address https://tools.ietf.org/html/rfc5321#section-4.5.3.1.2
)

var (
	// ErrInvalidPath is returned for paths with unbalanced brackets or without a mailbox
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidAddress is returned for mailboxes that don't have exactly one '@' with both sides set
	ErrInvalidAddress = errors.New("invalid address format")
	// ErrPathTooLong is returned for mailboxes longer than 256 characters
	ErrPathTooLong = errors.New("path must be shorter than 257 characters (RFC 5321 4.5.3.1.3)")
	// ErrLocalPartTooLong is returned when the part before '@' is longer than 64 characters
	ErrLocalPartTooLong = errors.New("local part must be shorter than 65 characters (RFC 5321 4.5.3.1.1)")
	// ErrDomainPartTooLong is returned when the part after '@' is longer than 255 characters
	ErrDomainPartTooLong = errors.New("domain part must be shorter than 256 characters (RFC 5321 4.5.3.1.2)")
)

/*
ParsePath parses the argument of MAIL or RCPT, with the FROM:/TO: prefix already removed,
into the mailbox and the trailing ESMTP parameters.

	<user@example.com> BODY=8BITMIME -> user@example.com, [BODY=8BITMIME]
	user@example.com                 -> user@example.com, []
	<@relay.example:user@example.com> -> user@example.com, [] (source route is ignored)
	<>                               -> "", []
*/
func ParsePath(arg string) (Address, []string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", nil, ErrInvalidPath
	}

	var path, rest string
	if strings.HasPrefix(arg, "<") {
		end := strings.IndexByte(arg, '>')
		if end < 0 {
			return "", nil, ErrInvalidPath
		}
		path, rest = arg[1:end], arg[end+1:]
	} else {
		path, rest, _ = strings.Cut(arg, " ")
		if strings.ContainsAny(path, "<>") {
			return "", nil, ErrInvalidPath
		}
	}

	// a source route is terminated by the colon, the mailbox follows
	if strings.HasPrefix(path, "@") {
		idx := strings.IndexByte(path, ':')
		if idx < 0 {
			return "", nil, ErrInvalidPath
		}
		path = path[idx+1:]
	}

	params := strings.Fields(rest)
	if path == "" {
		return "", params, nil
	}
	a := Address(path)
	if err := a.Validate(); err != nil {
		return "", nil, err
	}
	return a, params, nil
}

// IsNull reports whether the address is the null reverse-path
func (a Address) IsNull() bool {
	return a == ""
}

// Email returns whole email address
func (a Address) Email() string {
	if a.IsNull() {
		return ""
	}
	return a.User() + "@" + a.Hostname()
}

// Hostname returns the name of the host of email address
func (a Address) Hostname() string {
	e := string(a)
	if idx := strings.LastIndex(e, "@"); idx != -1 {
		return strings.ToLower(e[idx+1:])
	}
	return ""
}

// User returns user part of email address
func (a Address) User() string {
	e := string(a)
	if idx := strings.LastIndex(e, "@"); idx != -1 {
		return e[:idx]
	}
	return ""
}

// Validate validates given email address
// checks size and format, the null address is valid
func (a Address) Validate() error {
	if a.IsNull() {
		return nil
	}
	if strings.Count(string(a), "@") != 1 || a.User() == "" || a.Hostname() == "" {
		return ErrInvalidAddress
	}
	if len(a) > maxEmailLength {
		return ErrPathTooLong
	}
	if len(a.User()) > maxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if len(a.Hostname()) > maxDomainPartLength {
		return ErrDomainPartTooLong
	}
	return nil
}
