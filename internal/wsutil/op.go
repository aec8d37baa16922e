package wsutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/diamondburned/arikawa/internal/json"
)

var ErrEmptyPayload = errors.New("empty payload")

// OPCode is a generic type for websocket OP codes.
type OPCode uint8

// OP is a decoded websocket frame, shared by the gateway and voice gateway
// wire formats.
type OP struct {
	Code OPCode   `json:"op"`
	Data json.Raw `json:"d,omitempty"`

	// Sequence and EventName are only set for gateway Dispatch (op 0).
	Sequence  int64  `json:"s,omitempty"`
	EventName string `json:"t,omitempty"`
}

func (op *OP) UnmarshalData(v interface{}) error {
	return json.Unmarshal(op.Data, v)
}

// DecodeOP decodes a raw Event off the wire into an OP, or returns the
// event's carried error.
func DecodeOP(ev Event) (*OP, error) {
	if ev.Error != nil {
		return nil, ev.Error
	}

	if len(ev.Data) == 0 {
		return nil, ErrEmptyPayload
	}

	var op *OP
	if err := json.Unmarshal(ev.Data, &op); err != nil {
		return nil, errors.Wrap(err, "OP error: "+string(ev.Data))
	}

	return op, nil
}

// AssertEvent decodes ev, checks that its opcode is code, and unmarshals its
// data into v.
func AssertEvent(ev Event, code OPCode, v interface{}) (*OP, error) {
	op, err := DecodeOP(ev)
	if err != nil {
		return nil, err
	}

	if op.Code != code {
		return op, fmt.Errorf(
			"unexpected OP code: %d, expected %d (%s)", op.Code, code, op.Data)
	}

	if err := json.Unmarshal(op.Data, v); err != nil {
		return op, errors.Wrap(err, "failed to decode data")
	}

	return op, nil
}

// UnknownEventError marks a dispatch event the handler doesn't recognize.
// It's not fatal; callers should log and continue.
type UnknownEventError struct {
	Name string
	Data json.Raw
}

func (err UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %s: %s", err.Name, string(err.Data))
}

// IsUnknownEvent returns true if err is (or wraps) an UnknownEventError.
func IsUnknownEvent(err error) bool {
	var uevent *UnknownEventError
	return errors.As(err, &uevent)
}

// EventHandler handles a single decoded OP.
type EventHandler interface {
	HandleOP(op *OP) error
}

func HandleEvent(h EventHandler, ev Event) error {
	o, err := DecodeOP(ev)
	if err != nil {
		return err
	}

	return h.HandleOP(o)
}

// WaitForEvent blocks, handling every incoming event via h, until fn returns
// true for one of them.
func WaitForEvent(ctx context.Context, h EventHandler, ch <-chan Event, fn func(*OP) bool) error {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return errors.New("event not found and event channel is closed")
			}

			o, err := DecodeOP(e)
			if err != nil {
				return err
			}

			if err := h.HandleOP(o); err != nil {
				if IsUnknownEvent(err) {
					WSError(err)
					continue
				}
				return err
			}

			if fn(o) {
				return nil
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ExtraHandlers implements a wait_for-style registry: a caller registers a
// predicate and receives a channel that fires at most once, the next time an
// OP satisfies it.
type ExtraHandlers struct {
	mutex    sync.Mutex
	handlers map[uint32]*ExtraHandler
	serial   uint32
}

type ExtraHandler struct {
	Check func(*OP) bool
	send  chan *OP

	closed atomic.Bool
}

// Add registers a predicate and returns a channel that receives the
// satisfying OP, plus a cancel function to unregister early.
func (ex *ExtraHandlers) Add(check func(*OP) bool) (<-chan *OP, func()) {
	handler := &ExtraHandler{
		Check: check,
		send:  make(chan *OP),
	}

	ex.mutex.Lock()
	defer ex.mutex.Unlock()

	if ex.handlers == nil {
		ex.handlers = make(map[uint32]*ExtraHandler, 1)
	}

	i := ex.serial
	ex.serial++
	ex.handlers[i] = handler

	return handler.send, func() {
		if handler.closed.Load() {
			return
		}

		ex.mutex.Lock()
		defer ex.mutex.Unlock()
		delete(ex.handlers, i)
	}
}

// Check runs every registered predicate against op, delivering op to and
// removing each handler that matches. It is not safe for concurrent use with
// itself, only with Add.
func (ex *ExtraHandlers) Check(op *OP) {
	ex.mutex.Lock()
	defer ex.mutex.Unlock()

	for i, handler := range ex.handlers {
		if handler.Check(op) {
			handler.send <- op
			handler.closed.Store(true)
			delete(ex.handlers, i)
		}
	}
}
