// Package transport carries sync protocol messages between devices. The
// core never opens sockets itself; hosts plug in a Transport (or use the
// bundled HTTP client) and run the bundled handler on the receiving side.
package transport

import "context"

// Transport delivers one request message and returns the peer's response.
// Retry, authentication and encryption are the host's responsibility.
type Transport interface {
	Send(ctx context.Context, msg []byte) ([]byte, error)
}

// Func adapts a plain function to a Transport, mostly for tests and
// in-process loopback.
type Func func(ctx context.Context, msg []byte) ([]byte, error)

func (f Func) Send(ctx context.Context, msg []byte) ([]byte, error) {
	return f(ctx, msg)
}
