package eccentric

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeCommand_Keywords(t *testing.T) {
	cases := map[string]Verb{
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
	for keyword, verb := range cases {
		for _, spelling := range []string{keyword, strings.ToLower(keyword), strings.ToUpper(keyword[:1]) + strings.ToLower(keyword[1:])} {
			cmd := DecodeCommand(spelling + " arg\r\n")
			assert.Equal(t, verb, cmd.Verb, "'%s' should decode to %s", spelling, verb)
			assert.Equal(t, spelling, cmd.Keyword, "keyword should be kept as spelled by the client")
		}
	}
}

func TestDecodeCommand_Unrecognized(t *testing.T) {
	for _, line := range []string{
		"FOO bar\r\n",
		"\r\n",
		"",
		"\n",
		"MA\r\n",
		"MAILFROM:<a@b.c>\r\n",
		" MAIL FROM:<a@b.c>\r\n",
		"STARTTLS\r\n",
		"čšěř test@test.te -d\r\n",
	} {
		cmd := DecodeCommand(line)
		assert.Equal(t, VerbUnrecognized, cmd.Verb, "%q should decode to an unrecognized command", line)
		assert.Equal(t, "", cmd.Arg, "unrecognized commands carry no argument")
	}
}

func TestDecodeCommand_Args(t *testing.T) {
	cmd := DecodeCommand("EHLO client.example\r\n")
	assert.Equal(t, "client.example", cmd.Arg)

	cmd = DecodeCommand("EHLO\r\n")
	assert.Equal(t, VerbGreet, cmd.Verb, "greeting without a domain must still decode")
	assert.Equal(t, "", cmd.Arg)

	cmd = DecodeCommand("EHLO  two spaces\r\n")
	assert.Equal(t, " two spaces", cmd.Arg, "only one separator should be removed")

	cmd = DecodeCommand("VRFY postmaster\n")
	assert.Equal(t, VerbVerify, cmd.Verb, "bare LF should be accepted as terminator")
	assert.Equal(t, "postmaster", cmd.Arg)

	cmd = DecodeCommand("NOOP trailing \r\n")
	assert.Equal(t, "trailing ", cmd.Arg, "trailing spaces are part of the argument")
}

func TestDecodeCommand_Paths(t *testing.T) {
	cmd := DecodeCommand("MAIL FROM:sender@example.com\r\n")
	assert.Equal(t, VerbMailFrom, cmd.Verb)
	assert.Equal(t, "sender@example.com", cmd.Arg)

	cmd = DecodeCommand("mail from:<sender@example.com> BODY=8BITMIME\r\n")
	assert.Equal(t, "<sender@example.com> BODY=8BITMIME", cmd.Arg, "parameters are left for the delivery side")

	cmd = DecodeCommand("RCPT TO:rcpt@example.com\r\n")
	assert.Equal(t, VerbRcptTo, cmd.Verb)
	assert.Equal(t, "rcpt@example.com", cmd.Arg)

	cmd = DecodeCommand("RCPT rcpt@example.com\r\n")
	assert.Equal(t, "rcpt@example.com", cmd.Arg, "argument without TO: is kept verbatim")

	cmd = DecodeCommand("MAIL\r\n")
	assert.Equal(t, VerbMailFrom, cmd.Verb)
	assert.Equal(t, "", cmd.Arg, "missing reverse-path decodes to an empty argument")

	cmd = DecodeCommand("RCPT TO:\r\n")
	assert.Equal(t, "", cmd.Arg)
}

func TestCommand_String(t *testing.T) {
	orig := "MAIL FROM:<test@test.te> 8BITMIME"
	assert.Equal(t, orig, DecodeCommand(orig+"\r\n").String(), "converting cmd back to string should return original parsed line")

	orig = "RSET"
	assert.Equal(t, orig, DecodeCommand(orig+"\r\n").String())
}

func TestVerb_String(t *testing.T) {
	for v := Verb(0); v < verbCount; v++ {
		assert.NotEmpty(t, v.String())
	}
	assert.Equal(t, "UNRECOGNIZED", Verb(100).String())
}
