package eccentric

import (
	"context"
	"net"

	"github.com/go-errors/errors"
	"go.uber.org/zap"
)

// DiscardHandler accepts every message and drops it, for testing purposes
var DiscardHandler Handler = HandlerFunc(func(context.Context, *Envelope) (string, error) {
	return "DISCARDED", nil
})

// isClosed reports whether err comes from using a closed listener or connection
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// stackField returns the stack of err as a log field, err without a stack gives a no-op field
func stackField(err error) zap.Field {
	var withStack *errors.Error
	if errors.As(err, &withStack) {
		return zap.String("stack", withStack.ErrorStack())
	}
	return zap.Skip()
}
