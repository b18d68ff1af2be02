package masterconn

import (
	"context"
	"net"

	"github.com/filewarden/mesh/pkg/logger"
	"github.com/filewarden/mesh/pkg/util"
)

// Listener accepts inbound agent connections and hands each to a
// dedicated worker goroutine running the Handler state machine —
// net.Listen already sets SO_REUSEADDR-equivalent socket options on
// every platform Go supports.
type Listener struct {
	addr    string
	handler *Handler
}

// NewListener creates a Listener bound to addr (e.g. "0.0.0.0:5000").
func NewListener(addr string, handler *Handler) *Listener {
	return &Listener{addr: addr, handler: handler}
}

// Serve accepts connections until ctx is cancelled, running one
// worker per connection. Unbounded accept loop per spec.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	util.SafeGo(func() {
		<-ctx.Done()
		ln.Close()
	})

	logger.Infow("masterconn: listening", "addr", l.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Errorw("masterconn: accept failed", logger.FieldError, err)
				continue
			}
		}
		util.SafeGo(func() { l.handler.Handle(ctx, conn) })
	}
}
