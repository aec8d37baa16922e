package voicegateway

import (
	"github.com/pkg/errors"

	"github.com/diamondburned/arikawa/internal/wsutil"
)

// OPCode is the voice gateway's websocket opcode type.
type OPCode = wsutil.OPCode

const (
	IdentifyOP           OPCode = 0
	SelectProtocolOP     OPCode = 1
	ReadyOP              OPCode = 2
	HeartbeatOP          OPCode = 3
	SessionDescriptionOP OPCode = 4
	SpeakingOP           OPCode = 5
	HeartbeatAckOP       OPCode = 6
	ResumeOP             OPCode = 7
	HelloOP              OPCode = 8
	InvalidateSessionOP  OPCode = 9
	ClientConnectOP      OPCode = 12
	ClientDisconnectOP   OPCode = 13
)

// HandleOP implements wsutil.EventHandler, dispatched serially by a
// wsutil.PacemakerLoop.
func (g *Gateway) HandleOP(op *wsutil.OP) error {
	switch op.Code {
	case ReadyOP:
		var ready ReadyEvent
		if err := op.UnmarshalData(&ready); err != nil {
			return wsutil.ErrBrokenConnection(err)
		}

		g.mutex.Lock()
		g.ready = ready
		g.mutex.Unlock()

	case SessionDescriptionOP:
		// Delivered to whoever registered the one-shot waiter in
		// SessionDescription; nothing to do here.

	case SpeakingOP:
		var speaking SpeakingEvent
		if err := op.UnmarshalData(&speaking); err != nil {
			return nil
		}

		g.mutex.Lock()
		if g.speakingSSRC == nil {
			g.speakingSSRC = make(map[uint32]bool)
		}
		g.speakingSSRC[speaking.SSRC] = speaking.Speaking&Microphone != 0
		g.mutex.Unlock()

	case HeartbeatAckOP:
		g.PacerLoop.Echo()

	case HelloOP:
		// Handled synchronously during Open.

	case InvalidateSessionOP:
		// The server invalidated our session but left the socket open;
		// resend IDENTIFY in place instead of tearing the connection down.
		if err := g.Identify(); err != nil {
			return wsutil.ErrBrokenConnection(errors.Wrap(err, "failed to resend identify after session invalidation"))
		}

	case ClientConnectOP:
		// Parse-only: this core doesn't track joined peers beyond SSRC.
		var ev ClientConnectEvent
		if err := op.UnmarshalData(&ev); err != nil {
			return errors.Wrap(err, "failed to decode CLIENT_CONNECT")
		}

	case ClientDisconnectOP:
		var ev ClientDisconnectEvent
		if err := op.UnmarshalData(&ev); err != nil {
			return errors.Wrap(err, "failed to decode CLIENT_DISCONNECT")
		}

	default:
		return &wsutil.UnknownEventError{Name: "", Data: op.Data}
	}

	return nil
}

// IsSpeaking reports the last known speaking state for ssrc.
func (g *Gateway) IsSpeaking(ssrc uint32) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.speakingSSRC[ssrc]
}
