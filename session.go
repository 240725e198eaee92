package eccentric

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/matoous/go-nanoid"
	"go.uber.org/zap"

	"github.com/matoous/eccentric/mail"
	"github.com/matoous/eccentric/trace"
)

// Mode decides how the next client line is interpreted
type Mode int

const (
	// ModeCommand - every line is decoded as a command
	ModeCommand Mode = iota
	// ModeData - every line is message body until the terminator
	ModeData
)

func (m Mode) String() string {
	if m == ModeData {
		return "data"
	}
	return "command"
}

// ErrBodyTooLarge is returned when a body line would take the body over Limits.MsgSize
var ErrBodyTooLarge = errors.New("message body exceeds maximum size")

// reverseLookupTimeout bounds the PTR lookup done for the Received header
const reverseLookupTimeout = 5 * time.Second

// Peer represents the client connecting to the server
type Peer struct {
	HeloName   string // last name the client greeted with, kept across transactions
	ServerName string
	Addr       net.Addr
	TLS        *tls.ConnectionState
}

// deadliner is implemented by net.Conn, sessions over plain readers and writers have no deadlines
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

/*
Session is the protocol state machine of a single client. It reads lines from
the client, decides on the current Mode how to interpret them, mutates its
Transaction and answers every command with exactly one status line.

A Session is not safe for concurrent use, the server runs each one in its own
goroutine.
*/
type Session struct {
	id  string
	rw  *bufio.ReadWriter
	dl  deadliner // nil when the underlying stream has no deadlines
	ctx context.Context

	tx        *Transaction
	committed bool // tx was handed off and is kept only until the next transaction command
	mode      Mode
	tooBig    bool      // body limit exceeded, the rest of the body is discarded
	dataUntil time.Time // read deadline of the whole data phase

	badCommandsCount int
	quit             bool
	writeErr         error
	lastCode         string // code of the last reply, for the command metric
	start            time.Time

	peer *Peer
	log  *zap.Logger
	srv  *Server
}

// NewSession creates a session speaking over rw. When rw is a net.Conn the
// client address is taken from it, Limits timeouts are enforced with its
// deadlines and a *tls.Conn is handshaken before the greeting.
func (srv *Server) NewSession(rw io.ReadWriter) *Session {
	id, err := gonanoid.Nanoid()
	if err != nil {
		// generating nanoid shouldn't really fail, and if, panicing is OK
		panic(err)
	}

	s := &Session{
		id:    id,
		rw:    bufio.NewReadWriter(bufio.NewReader(rw), bufio.NewWriter(rw)),
		ctx:   context.Background(),
		tx:    NewTransaction(),
		mode:  ModeCommand,
		start: time.Now(),
		srv:   srv,
		peer: &Peer{
			ServerName: srv.Hostname,
		},
	}
	if dl, ok := rw.(deadliner); ok {
		s.dl = dl
	}
	remote := "local"
	if conn, ok := rw.(net.Conn); ok {
		s.peer.Addr = conn.RemoteAddr()
		remote = s.peer.Addr.String()
	}
	s.log = srv.log.With(zap.String("session_id", id), zap.String("remote", remote))
	return s
}

// ID returns the session id, also used in the Received header
func (s *Session) ID() string {
	return s.id
}

// Transaction returns the current transaction. After a completed data phase
// it is the committed transaction until the next MAIL, RCPT, DATA, HELO/EHLO or RSET.
func (s *Session) Transaction() *Transaction {
	return s.tx
}

// Mode returns the current mode
func (s *Session) Mode() Mode {
	return s.mode
}

// Peer returns the client information
func (s *Session) Peer() *Peer {
	return s.peer
}

/*
Serve greets the client and runs the session until QUIT, end of stream, a
timeout or a fault. End of stream is a normal end and returns nil, so does a
timeout which is answered with 421. Read and write faults are returned wrapped
with their stack.

ctx cancellation is noticed before every read, the session then answers 421
and returns nil.
*/
func (s *Session) Serve(ctx context.Context) error {
	s.ctx = ctx

	if tlsConn, ok := s.dl.(*tls.Conn); ok {
		if err := s.handshake(tlsConn); err != nil {
			return err
		}
	}

	s.log.Info("session started")
	defer func() {
		s.log.Info("session ended", zap.Duration("duration", time.Since(s.start)))
	}()

	s.out(mail.ServiceReady(s.peer.ServerName))
	for !s.quit && s.writeErr == nil {
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Debug("end of stream", zap.Stringer("mode", s.mode))
				return nil
			}
			if s.ctx.Err() != nil {
				s.out(mail.Codes.ErrorShutdown)
				return nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.log.Info("timeout", zap.Stringer("mode", s.mode))
				s.out(mail.Codes.ErrorTimeout)
				return nil
			}
			return err
		}

		if s.mode == ModeData {
			s.handleDataLine(line)
			continue
		}

		cmd := DecodeCommand(line)
		s.log.Debug("command", zap.Stringer("verb", cmd.Verb), zap.String("line", cmd.String()))
		cmdStart := time.Now()
		handlers[cmd.Verb](s, cmd)
		metricCommands.WithLabelValues(strings.ToLower(cmd.Verb.String()), s.lastCode).Observe(time.Since(cmdStart).Seconds())
	}
	return s.writeErr
}

func (s *Session) handshake(conn *tls.Conn) error {
	ctx := s.ctx
	if s.srv.Limits.CmdInput > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.srv.Limits.CmdInput)
		defer cancel()
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		return errors.Wrap(err, 0)
	}
	state := conn.ConnectionState()
	s.peer.TLS = &state
	s.log.Debug("tls established", zap.String("tls", trace.TLSInfo(&state)))
	return nil
}

// readLine reads one line including its terminator. A final line without a
// terminator is discarded and reported as io.EOF.
func (s *Session) readLine() (string, error) {
	if s.dl != nil {
		deadline := s.dataUntil
		if s.mode == ModeCommand {
			deadline = time.Time{}
			if s.srv.Limits.CmdInput > 0 {
				deadline = time.Now().Add(s.srv.Limits.CmdInput)
			}
		}
		if err := s.dl.SetReadDeadline(deadline); err != nil {
			return "", errors.Wrap(err, 0)
		}
	}
	// checked after the deadline is set, Shutdown cancels first and expires deadlines second
	if err := s.ctx.Err(); err != nil {
		return "", errors.Wrap(err, 0)
	}

	line, err := s.rw.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				s.log.Debug("discarding unterminated line", zap.Int("length", len(line)))
			}
			return "", io.EOF
		}
		return "", errors.Wrap(err, 0)
	}
	return line, nil
}

// out writes a single status line. After the first write failure nothing
// more is written and the session ends with the failure.
func (s *Session) out(msg string) {
	if s.writeErr != nil {
		return
	}
	s.log.Debug("reply", zap.String("msg", msg))
	if len(msg) >= 3 {
		s.lastCode = msg[:3]
	}

	if s.dl != nil && s.srv.Limits.ReplyOut > 0 {
		_ = s.dl.SetWriteDeadline(time.Now().Add(s.srv.Limits.ReplyOut))
	}
	s.rw.WriteString(msg)
	s.rw.WriteString("\r\n")
	if err := s.rw.Flush(); err != nil {
		s.log.Error("flush", zap.Error(err))
		s.writeErr = errors.Wrap(err, 0)
	}
}

// nextTx replaces the committed transaction with a fresh one, so that the
// committed one stays observable until the client starts working on the next
func (s *Session) nextTx() {
	if s.committed {
		s.tx = NewTransaction()
		s.committed = false
	}
}

func (s *Session) strict() bool {
	return s.srv.Limits.StrictSequence
}

func handleGreet(s *Session, cmd Command) {
	s.nextTx()
	s.tx.ClientDomain = cmd.Arg
	s.peer.HeloName = cmd.Arg
	s.out(mail.Codes.SuccessGreetCmd)
}

func handleMail(s *Session, cmd Command) {
	s.nextTx()
	if s.strict() {
		if s.peer.HeloName == "" {
			s.out(mail.Codes.FailNoGreeting)
			return
		}
		if s.tx.Sender != "" {
			s.out(mail.Codes.FailNestedMailCmd)
			return
		}
	}
	s.tx.Sender = cmd.Arg
	s.out(mail.Codes.SuccessMailCmd)
}

func handleRcpt(s *Session, cmd Command) {
	s.nextTx()
	if s.strict() && s.tx.Sender == "" {
		s.out(mail.Codes.FailNoSenderRcptCmd)
		return
	}
	s.tx.AddRecipient(cmd.Arg)
	s.out(mail.Codes.SuccessRcptCmd)
}

func handleData(s *Session, _ Command) {
	s.nextTx()
	if s.strict() && len(s.tx.Recipients) == 0 {
		s.out(mail.Codes.FailNoRecipientsDataCmd)
		return
	}
	s.mode = ModeData
	s.tooBig = false
	s.dataUntil = time.Time{}
	if s.srv.Limits.MsgInput > 0 {
		s.dataUntil = time.Now().Add(s.srv.Limits.MsgInput)
	}
	s.out(mail.Codes.SuccessDataCmd)
}

// handleRset drops the transaction, committed or not
func handleRset(s *Session, _ Command) {
	s.tx = NewTransaction()
	s.committed = false
	s.out(mail.Codes.SuccessResetCmd)
}

func handleNoop(s *Session, _ Command) {
	s.out(mail.Codes.SuccessNoopCmd)
}

// handleVrfy never discloses anything about mailboxes
func handleVrfy(s *Session, _ Command) {
	s.out(mail.Codes.SuccessVerifyCmd)
}

func handleQuit(s *Session, _ Command) {
	if !s.committed && !s.tx.IsEmpty() {
		s.log.Info("discarding unfinished transaction",
			zap.String("sender", s.tx.Sender),
			zap.Int("recipients", len(s.tx.Recipients)),
		)
	}
	s.out(mail.ServiceClosing(s.peer.ServerName))
	s.quit = true
	s.log.Info("quit", zap.Duration("in", time.Since(s.start)))
}

func handleUnrecognized(s *Session, cmd Command) {
	s.badCommandsCount++
	s.log.Debug("unrecognized command", zap.String("keyword", cmd.Keyword), zap.Int("count", s.badCommandsCount))
	if limit := s.srv.Limits.BadCmds; limit > 0 && s.badCommandsCount >= limit {
		s.out(mail.Codes.ErrorMaxUnrecognizedCmd)
		s.quit = true
		return
	}
	s.out(mail.Codes.FailUnrecognizedCmd)
}

// handlers is indexed by Verb, every verb has exactly one handler
var handlers = [verbCount]func(s *Session, cmd Command){
	VerbUnrecognized: handleUnrecognized,
	VerbGreet:        handleGreet,
	VerbMailFrom:     handleMail,
	VerbRcptTo:       handleRcpt,
	VerbStartData:    handleData,
	VerbReset:        handleRset,
	VerbNoop:         handleNoop,
	VerbVerify:       handleVrfy,
	VerbQuit:         handleQuit,
}

// isTerminator reports whether line ends the data phase, both CRLF and bare LF are accepted
func isTerminator(line string) bool {
	return line == ".\r\n" || line == ".\n"
}

// handleDataLine appends a body line verbatim or completes the data phase.
// Body lines get no reply.
func (s *Session) handleDataLine(line string) {
	if isTerminator(line) {
		s.endData()
		return
	}
	if s.tooBig {
		return
	}
	if err := s.appendBody(line); err != nil {
		s.tooBig = true
		s.log.Info("discarding rest of message body", zap.Error(err), zap.Int64("limit", s.srv.Limits.MsgSize))
	}
}

func (s *Session) appendBody(line string) error {
	if limit := s.srv.Limits.MsgSize; limit > 0 && int64(s.tx.BodyLen()+len(line)) > limit {
		return ErrBodyTooLarge
	}
	_, err := s.tx.WriteLine(line)
	return err
}

// endData answers the terminator and leaves data mode
func (s *Session) endData() {
	s.mode = ModeCommand

	if s.tooBig {
		s.tooBig = false
		s.tx = NewTransaction()
		metricDelivery.WithLabelValues("toobig").Inc()
		s.out(mail.Codes.FailTooBig)
		return
	}

	env := s.envelope()
	if s.srv.Handler != nil {
		id, err := s.srv.Handler.Deliver(s.ctx, env)
		if err != nil {
			s.log.Error("delivery failed", zap.Error(err), stackField(err))
			s.tx = NewTransaction()
			metricDelivery.WithLabelValues("delivererror").Inc()
			s.out(mail.Codes.ErrorDeliveryFailed)
			return
		}
		s.log.Info("message accepted", zap.String("id", id), zap.Int("size", len(env.Body)))
		metricDelivery.WithLabelValues("delivered").Inc()
	} else {
		metricDelivery.WithLabelValues("discarded").Inc()
	}
	s.committed = true
	s.out(mail.Codes.SuccessDataDone)
}

// envelope snapshots the transaction and adds the Received header
func (s *Session) envelope() *Envelope {
	env := s.tx.Snapshot()
	env.SessionID = s.id

	info := trace.Info{
		ClientDomain: env.ClientDomain,
		RemoteAddr:   s.peer.Addr,
		Hostname:     s.peer.ServerName,
		TLS:          s.peer.TLS,
		ID:           s.id,
		Recipients:   env.Recipients,
		Time:         env.ReceivedAt,
	}
	if info.ClientDomain == "" {
		info.ClientDomain = s.peer.HeloName
	}
	if ip := trace.RemoteIP(s.peer.Addr); ip != nil && s.srv.Resolver != nil {
		ctx, cancel := context.WithTimeout(s.ctx, reverseLookupTimeout)
		name, err := s.srv.Resolver.LookupAddr(ctx, ip)
		cancel()
		if err != nil {
			s.log.Debug("reverse lookup failed", zap.Stringer("ip", ip), zap.Error(err))
		}
		info.ReverseName = name
	}
	env.Received = trace.Received(info)
	return env
}
