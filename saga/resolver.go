package saga

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/registration"
)

// Watch is a cancellable handle on the status polling loop. The loop polls
// immediately, then on a fixed interval, and stops itself the moment it
// observes a terminal status. There is no retry cap: the gateway's webhook
// may legitimately take longer than any fixed timeout, so only a terminal
// state or Stop ends the loop.
type Watch struct {
	updates chan registration.Status
	stop    context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	final registration.Status
	err   error
}

// Updates streams observed status changes. Closed when the watch ends.
func (w *Watch) Updates() <-chan registration.Status {
	return w.updates
}

// Done is closed when the watch ends, either on a terminal status or Stop.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Stop cancels the polling loop and releases its timer. Safe to call more
// than once and after the watch already ended.
func (w *Watch) Stop() {
	w.stop()
}

// Wait blocks until the watch observes a terminal status, the watch is
// stopped, or ctx is done.
func (w *Watch) Wait(ctx context.Context) (registration.Status, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.final, w.err
	}
}

func (w *Watch) finish(status registration.Status, err error) {
	w.mu.Lock()
	w.final = status
	w.err = err
	w.mu.Unlock()

	close(w.updates)
	close(w.done)
}

// Resolve starts polling the authoritative status endpoint for the
// registration. This is the only path that ever claims success or failure;
// everything the widget or the relay reported earlier is just a hint.
func (s *Saga) Resolve(ctx context.Context, registrationID uuid.UUID) *Watch {
	pollCtx, cancel := context.WithCancel(ctx)

	w := &Watch{
		updates: make(chan registration.Status, 8),
		stop:    cancel,
		done:    make(chan struct{}),
	}

	go s.poll(pollCtx, registrationID, w)

	return w
}

func (s *Saga) poll(ctx context.Context, registrationID uuid.UUID, w *Watch) {
	ctx, span := s.tracer.Start(ctx, "saga.Resolve")
	defer span.End()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastSeen registration.Status

	for {
		reg, err := s.backend.GetRegistrationStatus(ctx, registrationID)
		switch {
		case err == nil:
			if reg.Status != lastSeen {
				lastSeen = reg.Status
				select {
				case w.updates <- reg.Status:
				default:
					// Slow consumer; Wait still sees the final status.
				}
			}

			if reg.Status.IsTerminal() {
				s.logger.InfoContext(ctx, "Registration reached terminal status",
					slog.String("registrationId", registrationID.String()),
					slog.String("status", string(reg.Status)),
				)
				w.finish(reg.Status, nil)
				return
			}
		case HasReason(err, REASON_DRAFT_NOT_FOUND):
			span.RecordError(err)
			w.finish("", NewSessionLostError("Registration id no longer known to the backend", err))
			return
		default:
			// Transient; keep polling, the read is side-effect free.
			s.logger.WarnContext(ctx, "Status poll failed",
				slog.String("registrationId", registrationID.String()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			w.finish(lastSeen, ctx.Err())
			return
		case <-ticker.C:
		}
	}
}
