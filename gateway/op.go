package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/diamondburned/arikawa/internal/json"
	"github.com/diamondburned/arikawa/internal/wsutil"
)

// OPCode is the gateway's websocket opcode type.
type OPCode = wsutil.OPCode

const (
	DispatchOP            OPCode = 0
	HeartbeatOP           OPCode = 1
	IdentifyOP            OPCode = 2
	PresenceUpdateOP      OPCode = 3
	VoiceStateUpdateOP    OPCode = 4
	VoicePingOP           OPCode = 5
	ResumeOP              OPCode = 6
	ReconnectOP           OPCode = 7
	RequestGuildMembersOP OPCode = 8
	InvalidSessionOP      OPCode = 9
	HelloOP               OPCode = 10
	HeartbeatAckOP        OPCode = 11
	GuildSyncOP           OPCode = 12
)

// ResumeRequested is a control-flow signal, not a user-facing error: it
// means the connection should be torn down and a RESUME (or, failing that,
// an IDENTIFY) attempted. It travels as a normal Go error value wrapped in
// wsutil.ErrBrokenConnection, never as a panic.
type ResumeRequested struct {
	Shard *Shard
}

func (err *ResumeRequested) Error() string {
	return "gateway: resume requested"
}

// ErrCannotReconnect marks a close code the gateway must treat as fatal:
// 1000 (normal), 4004 (auth failed), 4010 (invalid shard), 4011 (sharding
// required).
type ErrCannotReconnect struct {
	Code int
}

func (err *ErrCannotReconnect) Error() string {
	return "gateway: cannot reconnect after terminal close"
}

var terminalCloseCodes = map[int]bool{
	1000: true,
	4004: true,
	4010: true,
	4011: true,
}

// HandleOP implements wsutil.EventHandler. It is called once per decoded OP
// from the PacemakerLoop, serially.
func (g *Gateway) HandleOP(op *wsutil.OP) error {
	switch op.Code {
	case HeartbeatAckOP:
		g.PacerLoop.Echo()

	case HeartbeatOP:
		ctx, cancel := context.WithTimeout(context.Background(), g.WSTimeout)
		defer cancel()

		if err := g.PacerLoop.Pacemaker.Pace(ctx); err != nil {
			return wsutil.ErrBrokenConnection(errors.Wrap(err, "failed to pace on server request"))
		}

	case ReconnectOP:
		wsutil.WSDebug("gateway: RECONNECT received")
		return wsutil.ErrBrokenConnection(&ResumeRequested{Shard: g.Identifier.Shard})

	case InvalidSessionOP:
		var resumable bool
		if err := op.UnmarshalData(&resumable); err != nil {
			return errors.Wrap(err, "failed to decode INVALIDATE_SESSION data")
		}

		if resumable {
			time.Sleep(5 * time.Second)
			return wsutil.ErrBrokenConnection(&ResumeRequested{Shard: g.Identifier.Shard})
		}

		g.sessionMu.Lock()
		g.sessionID = ""
		g.sessionMu.Unlock()
		g.Sequence.Store(0)

		ctx, cancel := context.WithTimeout(context.Background(), g.WSTimeout)
		defer cancel()

		if err := g.IdentifyCtx(ctx); err != nil {
			return wsutil.ErrBrokenConnection(errors.Wrap(err, "failed to re-identify"))
		}

	case HelloOP:
		// Handled synchronously during Open; nothing to do mid-stream.

	case DispatchOP:
		return g.handleDispatch(op)

	default:
		return &wsutil.UnknownEventError{Name: op.EventName, Data: op.Data}
	}

	return nil
}

func (g *Gateway) handleDispatch(op *wsutil.OP) error {
	if op.Sequence > 0 {
		g.Sequence.Store(op.Sequence)
	}

	fn, ok := EventCreator[op.EventName]
	if !ok {
		return &wsutil.UnknownEventError{Name: op.EventName, Data: op.Data}
	}

	ev := fn()

	if err := json.Unmarshal(op.Data, ev); err != nil {
		return errors.Wrap(err, "failed to parse event "+op.EventName)
	}

	if ready, ok := ev.(*ReadyEvent); ok {
		g.sessionMu.Lock()
		g.sessionID = ready.SessionID
		g.sessionMu.Unlock()
	}

	g.Events <- ev
	return nil
}
