package wsutil

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/diamondburned/arikawa/internal/heart"
)

type errBrokenConnection struct {
	underneath error
}

func (err errBrokenConnection) Error() string {
	return "explicit connection break: " + err.underneath.Error()
}

func (err errBrokenConnection) Unwrap() error {
	return err.underneath
}

// ErrBrokenConnection marks err as fatal to the owning PacemakerLoop: the
// loop stops and returns it instead of logging and continuing. This is the
// signal used in place of raising an exception when a handler decides the
// connection can no longer be trusted (a RECONNECT request, a fatal close
// code, a decode failure on a payload that must parse).
func ErrBrokenConnection(err error) error {
	return errBrokenConnection{underneath: err}
}

// IsBrokenConnection returns true if err is (or wraps) a broken-connection
// signal.
func IsBrokenConnection(err error) bool {
	var broken errBrokenConnection
	return errors.As(err, &broken)
}

// CloseError wraps the error delivered when the websocket connection itself
// closes (as opposed to a decode or handler failure), preserving the peer's
// close code for callers that need to decide whether to resume or give up.
type CloseError struct {
	Code int
	Err  error
}

func (err *CloseError) Error() string { return err.Err.Error() }
func (err *CloseError) Unwrap() error { return err.Err }

// EventLoopHandler is implemented by whatever runs atop a PacemakerLoop: the
// gateway and voice gateway both satisfy this.
type EventLoopHandler interface {
	EventHandler
	HeartbeatCtx(context.Context) error
}

// deadCloseCode is the close code a PacemakerLoop reports when it force-
// closes the connection itself, after the peer stopped acknowledging
// heartbeats, rather than in response to a close frame the peer sent.
const deadCloseCode = 1006

// PacemakerLoop fuses a heart.Pacemaker with the websocket event channel: one
// goroutine both paces heartbeats and dispatches incoming OPs, so a handler
// never has to worry about heartbeat and dispatch races. A zero-value
// instance is only valid after RunAsync.
type PacemakerLoop struct {
	heart.Pacemaker
	running atomic.Bool

	// Closer is called, if set, to tear down the connection when the
	// Pacemaker decides the peer is dead (heart.ErrDead) rather than
	// leaving the socket open with no one reading it.
	Closer func() error

	stop   chan struct{}
	death  chan error
	events <-chan Event
	handler func(*OP) error

	Extras ExtraHandlers

	ErrorLog func(error)
}

func (p *PacemakerLoop) errorLog(err error) {
	if p.ErrorLog == nil {
		WSDebug("Uncaught error:", err)
		return
	}
	p.ErrorLog(err)
}

// Stop stops the loop. It does nothing if the loop isn't running.
func (p *PacemakerLoop) Stop() {
	if p.Stopped() {
		return
	}

	p.Pacemaker.Stop()
	close(p.stop)
}

func (p *PacemakerLoop) Stopped() bool {
	return p == nil || !p.running.Load()
}

// RunAsync starts the pacemaker and dispatch loop in the background. exit is
// called with the loop's terminal error (nil on a clean Stop).
func (p *PacemakerLoop) RunAsync(
	heartrate time.Duration, evs <-chan Event, evl EventLoopHandler, exit func(error)) {

	WSDebug("Starting the pacemaker loop.")

	p.Pacemaker = *heart.NewPacemaker(heartrate, evl.HeartbeatCtx)
	p.handler = evl.HandleOP
	p.events = evs
	p.stop = make(chan struct{})
	p.death = p.Pacemaker.StartAsync(nil)

	p.running.Store(true)

	go func() {
		exit(p.startLoop())
	}()
}

func (p *PacemakerLoop) startLoop() error {
	defer WSDebug("Pacemaker loop has exited.")
	defer p.running.Store(false)
	defer p.Pacemaker.Stop()

	for {
		select {
		case <-p.stop:
			WSDebug("Stop requested; exiting.")
			return nil

		case err := <-p.death:
			if err == nil {
				return nil
			}

			if errors.Is(err, heart.ErrDead) {
				if p.Closer != nil {
					if cerr := p.Closer(); cerr != nil {
						p.errorLog(errors.Wrap(cerr, "failed to close dead connection"))
					}
				}
				return &CloseError{Code: deadCloseCode, Err: errors.Wrap(err, "heartbeat acknowledgement timed out")}
			}

			return errors.Wrap(err, "pacemaker died")

		case ev, ok := <-p.events:
			if !ok {
				WSDebug("Events channel closed, stopping pacemaker loop.")
				return nil
			}

			if ev.Error != nil {
				return &CloseError{Code: ev.CloseCode, Err: errors.Wrap(ev.Error, "event returned error")}
			}

			o, err := DecodeOP(ev)
			if err != nil {
				return errors.Wrap(err, "failed to decode OP")
			}

			p.Extras.Check(o)

			if err := p.handler(o); err != nil {
				if IsBrokenConnection(err) {
					return errors.Wrap(err, "handler failed")
				}
				p.errorLog(err)
			}
		}
	}
}
