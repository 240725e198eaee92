package eccentric

import "time"

// Limits hold all the session limitations - timeouts, sizes and bad command counts
type Limits struct {
	CmdInput       time.Duration // waiting for the next command line
	MsgInput       time.Duration // total time for receiving the mail body
	ReplyOut       time.Duration // server reply time
	MsgSize        int64         // max body size in bytes, 0 means unlimited
	BadCmds        int           // unrecognized commands before the session is dropped, 0 means unlimited
	StrictSequence bool          // reject out of order MAIL/RCPT/DATA with 503
}

// DefaultLimits that are applied if you do not specify custom limits.
// Two minutes for command input and replies, ten minutes for receiving the body.
// Body size and bad commands are not limited and command ordering is not enforced,
// a deployment facing the internet should set all three.
var DefaultLimits = Limits{
	CmdInput: 2 * time.Minute,
	MsgInput: 10 * time.Minute,
	ReplyOut: 2 * time.Minute,
}
