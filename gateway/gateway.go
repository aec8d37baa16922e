// Package gateway implements the Discord gateway: the persistent websocket
// connection carrying dispatch events, heartbeats, and voice-state/session
// control messages. It does not interpret dispatch payloads beyond decoding
// them; that is left to callers reading off Events.
package gateway

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/diamondburned/arikawa/internal/json"
	"github.com/diamondburned/arikawa/internal/wsutil"
)

// Version and Encoding are appended to the gateway URL as query parameters.
var (
	Version  = "10"
	Encoding = "json"
)

// AddGatewayParams appends the version/encoding query parameters to a raw
// gateway URL.
func AddGatewayParams(rawurl string) string {
	return wsutil.InjectValues(rawurl, url.Values{
		"v":        {Version},
		"encoding": {Encoding},
	})
}

// Gateway manages a single websocket connection to Discord's gateway,
// including IDENTIFY/RESUME handshaking and heartbeat pacing. Events
// decoded off dispatch (op 0) frames are delivered on Events.
type Gateway struct {
	WS         *wsutil.Websocket
	Identifier Identifier
	PacerLoop  wsutil.PacemakerLoop
	WSTimeout  time.Duration

	Events chan Event

	// ErrorLog receives non-fatal errors encountered while handling OPs.
	ErrorLog func(error)

	Sequence *atomic.Int64

	sessionMu sync.Mutex
	sessionID string
}

// NewGateway creates a Gateway around the given already-queried gateway URL
// and token, using default rate limiters.
func NewGateway(gatewayURL, token string) *Gateway {
	return NewGatewayWithIdentifier(gatewayURL, DefaultIdentifier(token))
}

// NewGatewayWithIdentifier creates a Gateway with a pre-built Identifier,
// useful for sharded bots sharing identify rate limiters.
func NewGatewayWithIdentifier(gatewayURL string, id Identifier) *Gateway {
	g := &Gateway{
		WS:         wsutil.New(AddGatewayParams(gatewayURL)),
		Identifier: id,
		WSTimeout:  wsutil.WSTimeout,
		Events:     make(chan Event, wsutil.WSBuffer),
		Sequence:   atomic.NewInt64(0),
	}

	g.PacerLoop.ErrorLog = g.errorLog
	return g
}

func (g *Gateway) errorLog(err error) {
	if g.ErrorLog != nil {
		g.ErrorLog(err)
	} else {
		wsutil.WSError(err)
	}
}

// SessionID returns the current session ID, or "" if none has been
// established yet.
func (g *Gateway) SessionID() string {
	g.sessionMu.Lock()
	defer g.sessionMu.Unlock()
	return g.sessionID
}

// Latency reports the round trip between the last heartbeat sent and its
// acknowledgement.
func (g *Gateway) Latency() time.Duration {
	return g.PacerLoop.Pacemaker.Latency()
}

// Open dials the gateway, waits for HELLO, and identifies or resumes
// depending on whether a prior session is present.
func (g *Gateway) Open(ctx context.Context) error {
	if err := g.WS.Dial(ctx); err != nil {
		return errors.Wrap(err, "failed to dial gateway")
	}

	ch := g.WS.Listen()

	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}

	if _, err := wsutil.AssertEvent(<-ch, HelloOP, &hello); err != nil {
		return errors.Wrap(err, "failed to assert HELLO")
	}

	heartrate := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	if g.SessionID() != "" && g.Sequence.Load() != 0 {
		if err := g.ResumeCtx(ctx); err != nil {
			return errors.Wrap(err, "failed to resume")
		}
	} else {
		if err := g.IdentifyCtx(ctx); err != nil {
			return errors.Wrap(err, "failed to identify")
		}
	}

	death := make(chan error, 1)
	g.PacerLoop.Closer = g.WS.Close
	g.PacerLoop.RunAsync(heartrate, ch, g, func(err error) { death <- err })

	go func() {
		if err := <-death; err != nil {
			g.handleDeath(err)
		}
	}()

	return nil
}

// handleDeath decides whether a terminal loop error is resumable. Terminal
// close codes (normal closure, auth failure, invalid shard, sharding
// required) are reported as an ErrCannotReconnect; anything else is reported as a
// ResumeRequested so the caller knows a fresh Open with the existing
// session ID/Sequence should resume rather than start over.
func (g *Gateway) handleDeath(err error) {
	var closeErr *wsutil.CloseError
	if errors.As(err, &closeErr) && terminalCloseCodes[closeErr.Code] {
		g.errorLog(&ErrCannotReconnect{Code: closeErr.Code})
		return
	}

	var resume *ResumeRequested
	if errors.As(err, &resume) {
		g.errorLog(err)
		return
	}

	g.errorLog(errors.Wrap(&ResumeRequested{Shard: g.Identifier.Shard}, err.Error()))
}

// Close gracefully closes the gateway connection and stops the pacemaker.
func (g *Gateway) Close() error {
	g.PacerLoop.Stop()
	return g.WS.CloseGracefully()
}

// Reconnect closes the current connection (if any) and reopens it, resuming
// the previous session when SessionID/Sequence are still populated.
func (g *Gateway) Reconnect(ctx context.Context) error {
	g.PacerLoop.Stop()
	if err := g.WS.Close(); err != nil && !errors.Is(err, wsutil.ErrWebsocketClosed) {
		g.errorLog(errors.Wrap(err, "failed to close before reconnecting"))
	}

	return g.Open(ctx)
}

// Send encodes data as the payload for opcode code and sends it.
func (g *Gateway) Send(code OPCode, data interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.WSTimeout)
	defer cancel()
	return g.SendCtx(ctx, code, data)
}

// SendCtx is Send with a caller-supplied context.
func (g *Gateway) SendCtx(ctx context.Context, code OPCode, data interface{}) error {
	b, err := json.Marshal(wsutil.OP{Code: code, Data: marshalRaw(data)})
	if err != nil {
		return errors.Wrap(err, "failed to encode payload")
	}
	return g.WS.Send(ctx, b)
}

func marshalRaw(v interface{}) json.Raw {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return json.Raw(b)
}

// IdentifyCtx sends IDENTIFY, waiting on the identify rate limiters first.
func (g *Gateway) IdentifyCtx(ctx context.Context) error {
	if err := g.Identifier.Wait(ctx); err != nil {
		return errors.Wrap(err, "can't wait for identify")
	}
	return g.SendCtx(ctx, IdentifyOP, g.Identifier.IdentifyCommand)
}

// ResumeCtx sends RESUME using the currently stored session ID and sequence.
func (g *Gateway) ResumeCtx(ctx context.Context) error {
	return g.SendCtx(ctx, ResumeOP, ResumeCommand{
		Token:     g.Identifier.Token,
		SessionID: g.SessionID(),
		Sequence:  g.Sequence.Load(),
	})
}

// HeartbeatCtx implements wsutil.EventLoopHandler. It's invoked by the
// Pacemaker on its own schedule.
func (g *Gateway) HeartbeatCtx(ctx context.Context) error {
	return g.SendCtx(ctx, HeartbeatOP, g.Sequence.Load())
}
