package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const replyTimeout = 2 * time.Second

// Handler processes one command request and returns its response payload.
type Handler interface {
	Handle(context.Context, Message) Message
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Message) Message

func (f HandlerFunc) Handle(ctx context.Context, msg Message) Message {
	return f(ctx, msg)
}

// Serve answers requests from in on out, one at a time, echoing each request id.
// It returns nil when ctx ends or the request pipe closes.
func Serve(ctx context.Context, in *Consumer, out *Producer, handler Handler) error {
	for {
		req, err := in.Get(ctx, 0)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		resp := handler.Handle(ctx, req.Body)
		if resp == nil {
			resp = Message{}
		}

		replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
		err = out.Put(replyCtx, Envelope{ID: req.ID, Body: resp})
		cancel()
		if err != nil {
			return fmt.Errorf("write response for %q: %w", req.Body.Cmd(), err)
		}
	}
}
