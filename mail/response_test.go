package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponse_String(t *testing.T) {
	assert.Equal(t, "250 OK", (&Response{BasicCode: 250, Class: ClassSuccess}).String())
	assert.Equal(t, "400 Temporary failure", (&Response{Class: ClassTransientFailure}).String(), "basic code falls back to the class")
	assert.Equal(t, "552 too big", (&Response{BasicCode: 552, Class: ClassPermanentFailure, Comment: "too big"}).String())
}

func TestCodes(t *testing.T) {
	assert.Equal(t, "250 OK", Codes.SuccessOK)
	assert.Equal(t, "354 Start mail input; end with <CRLF>.<CRLF>", Codes.SuccessDataCmd)
	assert.Equal(t, "500 Command not recognized", Codes.FailUnrecognizedCmd)
	assert.Equal(t, "503 Bad sequence of commands", Codes.FailBadSequence)
	assert.Equal(t, "552 Message exceeds maximum size", Codes.FailTooBig)
	for _, r := range []string{Codes.ErrorShutdown, Codes.ErrorTimeout, Codes.ErrorMaxUnrecognizedCmd} {
		assert.Regexp(t, "^421 ", r)
	}
	assert.Regexp(t, "^451 ", Codes.ErrorDeliveryFailed)
}

func TestServiceLines(t *testing.T) {
	assert.Equal(t, "220 mx.example.com Eccentric Mail Server Ready", ServiceReady("mx.example.com"))
	assert.Equal(t, "221 mx.example.com Bye", ServiceClosing("mx.example.com"))
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "500", class(ClassPermanentFailure).String())
	assert.True(t, (&Response{Class: ClassIntermediate}).IsPositive())
	assert.False(t, (&Response{Class: ClassTransientFailure}).IsPositive())
}
