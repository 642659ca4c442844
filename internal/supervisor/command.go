package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/tracing"
)

var tracer = otel.Tracer("github.com/rbright/voxmcp/internal/supervisor")

// SendCommand sends {cmd, ...args} to the worker and waits for its response.
//
// The wait is unbounded but sliced at the poll interval so a dead worker is
// noticed. One stale startup sentinel ahead of the response is skipped.
// Responses carrying "error" are returned, not escalated.
func (s *Supervisor) SendCommand(ctx context.Context, cmd string, args map[string]any) (ipc.Message, error) {
	ctx, span := tracer.Start(ctx, tracing.SpanPrefixCommand+cmd,
		trace.WithAttributes(attribute.String(tracing.AttrCommand, cmd)),
	)
	defer span.End()

	resp, err := s.sendCommand(ctx, cmd, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if text, failed := resp.ErrorText(); failed {
		span.SetAttributes(attribute.String(tracing.AttrErrorMessage, text))
	}
	return resp, nil
}

func (s *Supervisor) sendCommand(ctx context.Context, cmd string, args map[string]any) (ipc.Message, error) {
	select {
	case s.inflight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.inflight }()

	proc, commands, responses := s.snapshot()
	if proc == nil || commands == nil || responses == nil {
		return nil, ErrNotStarted
	}

	req := ipc.Message{ipc.KeyCmd: cmd}
	for key, value := range args {
		if key == ipc.KeyCmd {
			continue
		}
		req[key] = value
	}
	id := uuid.NewString()
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String(tracing.AttrCorrelation, id),
		attribute.Int(tracing.AttrWorkerPID, proc.Pid()),
	)

	if err := commands.Put(ctx, ipc.Envelope{ID: id, Body: req}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if stopped := s.stoppedError(proc, responses); stopped != nil {
			return nil, stopped
		}
		return nil, fmt.Errorf("send %q to voice agent: %w", cmd, err)
	}

	resp, err := s.awaitResponse(ctx, proc, responses, id)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Info("command cancelled", "command", cmd, "id", id)
		}
		return nil, err
	}

	if _, stale := resp.StartupError(); stale {
		s.logger.Warn("skipping stale startup error in response queue", "command", cmd)
		span.AddEvent(tracing.EventStaleSkipped)
		resp, err = s.awaitResponse(ctx, proc, responses, id)
		if err != nil {
			return nil, err
		}
	}

	if text, failed := resp.ErrorText(); failed {
		s.logger.Error("voice agent command failed", "command", cmd, "error", text)
	}
	s.logger.Debug("voice agent command response", "command", cmd, "response", resp.Describe())
	return resp, nil
}

// awaitResponse blocks for the next response belonging to id. Responses left
// behind by abandoned calls are discarded.
func (s *Supervisor) awaitResponse(ctx context.Context, proc Process, responses *ipc.Consumer, id string) (ipc.Message, error) {
	for {
		env, err := responses.Get(ctx, s.cfg.PollInterval)
		switch {
		case err == nil:
			if env.ID != "" && env.ID != id {
				s.logger.Warn("discarding orphaned response",
					"id", env.ID,
					"expected", id,
					"response", env.Body.Describe(),
				)
				trace.SpanFromContext(ctx).AddEvent(tracing.EventOrphanDropped,
					trace.WithAttributes(attribute.String(tracing.AttrCorrelation, env.ID)),
				)
				continue
			}
			return env.Body, nil
		case errors.Is(err, ipc.ErrTimeout), errors.Is(err, ipc.ErrClosed):
			trace.SpanFromContext(ctx).AddEvent(tracing.EventPollTimeout)
			if stopped := s.stoppedError(proc, responses); stopped != nil {
				return nil, stopped
			}
			if errors.Is(err, ipc.ErrClosed) {
				if err := sleepContext(ctx, s.cfg.PollInterval); err != nil {
					return nil, err
				}
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("read voice agent response: %w", err)
		}
	}
}

func (s *Supervisor) stoppedError(proc Process, responses *ipc.Consumer) error {
	if proc.Alive() {
		return nil
	}
	diag := s.drainStartupError(responses)
	code, _ := proc.ExitCode()
	return &WorkerStoppedError{Diagnostic: diag, ExitCode: code}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
