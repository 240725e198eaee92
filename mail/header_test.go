package mail

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHeader(t *testing.T) {
	body := []byte("Subject: hello\r\nMessage-ID: <1234.abcd@example.com>\r\nX-Custom:  spaced \r\n\r\nbody\r\n")
	h, err := ReadHeader(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", h.Get("subject"))
	assert.Equal(t, "1234.abcd@example.com", MessageID(h))
}

func TestReadHeader_NoHeaders(t *testing.T) {
	_, err := ReadHeader([]byte("just a line of text without a colon\r\n"))
	assert.Error(t, err)
}

func TestMessageID_Missing(t *testing.T) {
	h, err := ReadHeader([]byte("Subject: x\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "", MessageID(h))
}

func TestFoldHeader_Short(t *testing.T) {
	assert.Equal(t, "Received: from a by b", string(FoldHeader([]byte("Received: from a\tby  b\r\n"))))
}

func TestFoldHeader_Long(t *testing.T) {
	header := "Received: from " + strings.Repeat("word ", 40) + "end"
	folded := FoldHeader([]byte(header))

	lines := bytes.Split(folded, []byte("\r\n"))
	assert.Greater(t, len(lines), 1, "long header should be folded")
	for i, line := range lines {
		assert.LessOrEqual(t, len(line), maxFoldedLineLength+1, "line %d is too long: %q", i, line)
		if i > 0 {
			assert.True(t, bytes.HasPrefix(line, []byte{'\t'}), "continuation line should start with a tab")
		}
	}

	unfolded := strings.ReplaceAll(string(folded), "\r\n\t", " ")
	assert.Equal(t, header, unfolded, "unfolding should give back the original header")
}

func TestFoldHeader_NoSpace(t *testing.T) {
	header := strings.Repeat("x", 120)
	assert.Equal(t, header, string(FoldHeader([]byte(header))), "header without spaces can't be folded")
}
