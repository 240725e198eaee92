package mail

import "fmt"

const (
	// ClassSuccess specifies that the command was accepted and its action completed.
	ClassSuccess = 2
	// ClassIntermediate - the command was accepted but the action is held pending more input,
	// used only to start the data phase.
	ClassIntermediate = 3
	// ClassTransientFailure - the command was not accepted but the condition is temporary,
	// the client is encouraged to try again later.
	ClassTransientFailure = 4
	// ClassPermanentFailure - the command was not accepted and repeating it in the same form
	// will fail the same way.
	ClassPermanentFailure = 5
)

// class is a type for the Class* constants
type class int

// String implements stringer for the class type
func (c class) String() string {
	return fmt.Sprintf("%d00", c)
}

var (
	// Codes is to be read-only, except in the init() function
	Codes Responses
)

// Responses has some already pre-constructed status lines, without the line terminator
type Responses struct {
	// The 500's
	FailUnrecognizedCmd     string
	FailBadSequence         string
	FailNestedMailCmd       string
	FailNoGreeting          string
	FailNoSenderRcptCmd     string
	FailNoRecipientsDataCmd string
	FailTooBig              string

	// The 400's
	ErrorShutdown           string
	ErrorTimeout            string
	ErrorDeliveryFailed     string
	ErrorMaxUnrecognizedCmd string

	// The 300's
	SuccessDataCmd string

	// The 200's
	SuccessOK        string
	SuccessMailCmd   string
	SuccessRcptCmd   string
	SuccessResetCmd  string
	SuccessNoopCmd   string
	SuccessVerifyCmd string
	SuccessGreetCmd  string
	SuccessDataDone  string
}

// Called automatically during package load to build up the Responses struct
func init() {

	Codes = Responses{}

	Codes.SuccessOK = (&Response{
		BasicCode: 250,
		Class:     ClassSuccess,
	}).String()

	Codes.SuccessGreetCmd = Codes.SuccessOK
	Codes.SuccessMailCmd = Codes.SuccessOK
	Codes.SuccessRcptCmd = Codes.SuccessOK
	Codes.SuccessResetCmd = Codes.SuccessOK
	Codes.SuccessNoopCmd = Codes.SuccessOK
	Codes.SuccessVerifyCmd = Codes.SuccessOK
	Codes.SuccessDataDone = Codes.SuccessOK

	Codes.SuccessDataCmd = (&Response{
		BasicCode: 354,
		Class:     ClassIntermediate,
		Comment:   "Start mail input; end with <CRLF>.<CRLF>",
	}).String()

	Codes.FailUnrecognizedCmd = (&Response{
		BasicCode: 500,
		Class:     ClassPermanentFailure,
		Comment:   "Command not recognized",
	}).String()

	Codes.FailBadSequence = (&Response{
		BasicCode: 503,
		Class:     ClassPermanentFailure,
		Comment:   "Bad sequence of commands",
	}).String()

	Codes.FailNestedMailCmd = (&Response{
		BasicCode: 503,
		Class:     ClassPermanentFailure,
		Comment:   "Bad sequence of commands: nested MAIL command",
	}).String()

	Codes.FailNoGreeting = (&Response{
		BasicCode: 503,
		Class:     ClassPermanentFailure,
		Comment:   "Bad sequence of commands: send HELO/EHLO first",
	}).String()

	Codes.FailNoSenderRcptCmd = (&Response{
		BasicCode: 503,
		Class:     ClassPermanentFailure,
		Comment:   "Bad sequence of commands: need MAIL before RCPT",
	}).String()

	Codes.FailNoRecipientsDataCmd = (&Response{
		BasicCode: 503,
		Class:     ClassPermanentFailure,
		Comment:   "Bad sequence of commands: need RCPT before DATA",
	}).String()

	Codes.FailTooBig = (&Response{
		BasicCode: 552,
		Class:     ClassPermanentFailure,
		Comment:   "Message exceeds maximum size",
	}).String()

	Codes.ErrorDeliveryFailed = (&Response{
		BasicCode: 451,
		Class:     ClassTransientFailure,
		Comment:   "Requested action aborted: local error in processing",
	}).String()

	Codes.ErrorMaxUnrecognizedCmd = (&Response{
		BasicCode: 421,
		Class:     ClassTransientFailure,
		Comment:   "Too many unrecognized commands",
	}).String()

	Codes.ErrorShutdown = (&Response{
		BasicCode: 421,
		Class:     ClassTransientFailure,
		Comment:   "Server is shutting down, closing transmission channel",
	}).String()

	Codes.ErrorTimeout = (&Response{
		BasicCode: 421,
		Class:     ClassTransientFailure,
		Comment:   "Timeout exceeded, closing transmission channel",
	}).String()
}

// ServiceReady is the greeting sent before the first command is read
func ServiceReady(hostname string) string {
	return (&Response{
		BasicCode: 220,
		Class:     ClassSuccess,
		Comment:   hostname + " Eccentric Mail Server Ready",
	}).String()
}

// ServiceClosing answers QUIT
func ServiceClosing(hostname string) string {
	return (&Response{
		BasicCode: 221,
		Class:     ClassSuccess,
		Comment:   hostname + " Bye",
	}).String()
}

var defaultTexts = map[class]string{
	ClassSuccess:          "OK",
	ClassIntermediate:     "Continue",
	ClassTransientFailure: "Temporary failure",
	ClassPermanentFailure: "Permanent failure",
}

// Response type for Stringer interface
type Response struct {
	BasicCode int
	Class     class
	// Comment is optional
	Comment string
}

// String returns the status line: code, one space, text
func (r *Response) String() string {
	basicCode := r.BasicCode
	if basicCode == 0 {
		basicCode = int(r.Class) * 100
	}
	comment := r.Comment
	if len(comment) == 0 {
		comment = defaultTexts[r.Class]
	}
	return fmt.Sprintf("%d %s", basicCode, comment)
}

// IsPositive reports whether the response completes or continues the command
func (r *Response) IsPositive() bool {
	return r.Class == ClassSuccess || r.Class == ClassIntermediate
}
