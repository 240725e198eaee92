package eccentric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransaction_New(t *testing.T) {
	tx := NewTransaction()
	assert.True(t, tx.IsEmpty())
	assert.Equal(t, "", tx.ClientDomain)
	assert.Equal(t, "", tx.Sender)
	assert.Empty(t, tx.Recipients)
	assert.Equal(t, 0, tx.BodyLen())
}

func TestTransaction_Reset(t *testing.T) {
	tx := NewTransaction()
	tx.ClientDomain = "client.example"
	tx.Sender = "a@b.c"
	tx.AddRecipient("d@e.f")
	tx.WriteLine("line\r\n")
	assert.False(t, tx.IsEmpty())

	tx.Reset()
	assert.True(t, tx.IsEmpty(), "transaction should be empty after reset")
	assert.Equal(t, "", tx.Body())
}

func TestTransaction_Body(t *testing.T) {
	tx := NewTransaction()
	for _, line := range []string{"first\r\n", "\r\n", "..dots\r\n", "lf only\n"} {
		n, err := tx.WriteLine(line)
		assert.NoError(t, err)
		assert.Equal(t, len(line), n)
	}
	assert.Equal(t, "first\r\n\r\n..dots\r\nlf only\n", tx.Body())
	assert.Equal(t, len(tx.Body()), tx.BodyLen())
	assert.False(t, tx.IsEmpty(), "body alone makes the transaction non empty")
}

func TestTransaction_Snapshot(t *testing.T) {
	tx := NewTransaction()
	tx.ClientDomain = "client.example"
	tx.Sender = "a@b.c"
	tx.AddRecipient("one@e.f")
	tx.AddRecipient("two@e.f")
	tx.WriteLine("body\r\n")

	env := tx.Snapshot()
	assert.Equal(t, "client.example", env.ClientDomain)
	assert.Equal(t, "a@b.c", env.Sender)
	assert.Equal(t, []string{"one@e.f", "two@e.f"}, env.Recipients)
	assert.Equal(t, []byte("body\r\n"), env.Body)
	assert.False(t, env.ReceivedAt.IsZero())

	// the snapshot is independent of later changes
	tx.AddRecipient("three@e.f")
	tx.WriteLine("more\r\n")
	env.Body[0] = 'B'
	assert.Equal(t, []string{"one@e.f", "two@e.f"}, env.Recipients)
	assert.Equal(t, "body\r\nmore\r\n", tx.Body())

	env.Received = "Received: x\r\n"
	assert.Equal(t, "Received: x\r\nBody\r\n", string(env.Message()))
}
