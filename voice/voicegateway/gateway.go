// Package voicegateway implements the per-connection voice signaling
// websocket: IDENTIFY/RESUME, heartbeating, and the SELECT_PROTOCOL/
// SESSION_DESCRIPTION handshake that hands back the secret key used to
// encrypt RTP.
package voicegateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/diamondburned/arikawa/discord"
	"github.com/diamondburned/arikawa/internal/json"
	"github.com/diamondburned/arikawa/internal/wsutil"
)

// Version is the voice gateway protocol version this package speaks.
const Version = "4"

var (
	ErrNoSessionID = errors.New("no sessionID was received")
	ErrNoEndpoint  = errors.New("no endpoint was received")
)

// State holds the identifying information a VoiceConnectionSupervisor
// gathers from VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE before a voice
// gateway can be opened.
type State struct {
	GuildID   discord.GuildID
	ChannelID discord.ChannelID
	UserID    discord.UserID

	SessionID string
	Token     string
	Endpoint  string
}

// Gateway is a single voice signaling connection.
type Gateway struct {
	state State

	mutex        sync.RWMutex
	ready        ReadyEvent
	speakingSSRC map[uint32]bool

	ws        *wsutil.Websocket
	PacerLoop wsutil.PacemakerLoop

	Timeout   time.Duration
	reconnect bool

	ErrorLog func(err error)

	death chan error
}

// New creates a Gateway for the given state. Open must be called before use.
func New(state State) *Gateway {
	return &Gateway{
		state:    state,
		Timeout:  wsutil.WSTimeout,
		ErrorLog: wsutil.WSError,
	}
}

// Died returns the channel the Gateway reports its terminal error on, once
// the pacemaker loop stops for any reason. It's replaced on every Open, so
// callers that reconnect must re-fetch it after each successful Open. The
// VoiceConnectionSupervisor's poller selects on this to classify close codes
// per the reconnect policy.
func (g *Gateway) Died() <-chan error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.death
}

// Ready returns the most recently received READY payload.
func (g *Gateway) Ready() ReadyEvent {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.ready
}

// Open dials the voice gateway, waits for HELLO, and identifies or resumes
// depending on whether this is a reconnect.
func (g *Gateway) Open(ctx context.Context) error {
	if g.state.Endpoint == "" {
		return ErrNoEndpoint
	}
	if g.state.SessionID == "" {
		return ErrNoSessionID
	}

	endpoint := "wss://" + strings.TrimSuffix(g.state.Endpoint, ":80") + "/?v=" + Version

	wsutil.WSDebug("voicegateway: connecting to " + endpoint)
	g.ws = wsutil.New(endpoint)

	dctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	if err := g.ws.Dial(dctx); err != nil {
		return errors.Wrap(err, "failed to connect to voice gateway")
	}

	if err := g.start(ctx); err != nil {
		g.ws.Close()
		return err
	}

	return nil
}

func (g *Gateway) start(ctx context.Context) error {
	ch := g.ws.Listen()

	var hello HelloEvent
	if _, err := wsutil.AssertEvent(<-ch, HelloOP, &hello); err != nil {
		return errors.Wrap(err, "error at Hello")
	}

	if !g.reconnect {
		if err := g.IdentifyCtx(ctx); err != nil {
			return errors.Wrap(err, "failed to identify")
		}
	} else {
		if err := g.ResumeCtx(ctx); err != nil {
			return errors.Wrap(err, "failed to resume")
		}
	}
	g.reconnect = false

	if err := wsutil.WaitForEvent(ctx, g, ch, func(op *wsutil.OP) bool {
		return op.Code == ReadyOP
	}); err != nil {
		return errors.Wrap(err, "failed to wait for Ready")
	}

	death := make(chan error, 1)

	g.mutex.Lock()
	g.death = death
	g.mutex.Unlock()

	g.PacerLoop.Closer = g.ws.Close
	g.PacerLoop.RunAsync(hello.HeartbeatInterval.Duration(), ch, g, func(err error) { death <- err })

	return nil
}

// Close gracefully closes the voice gateway.
func (g *Gateway) Close() error {
	g.PacerLoop.Stop()
	if g.ws == nil {
		return nil
	}
	return g.ws.CloseGracefully()
}

// Reconnect tears down and reopens the connection, attempting RESUME.
func (g *Gateway) Reconnect(ctx context.Context) error {
	g.Close()
	g.reconnect = true
	return g.Open(ctx)
}

// SessionDescription performs the SELECT_PROTOCOL / SESSION_DESCRIPTION
// handshake: it sends sp and blocks for the server's reply carrying the
// encryption mode and secret key.
func (g *Gateway) SessionDescription(sp SelectProtocol) (*SessionDescriptionEvent, error) {
	ch, cancel := g.PacerLoop.Extras.Add(func(op *wsutil.OP) bool {
		return op.Code == SessionDescriptionOP
	})
	defer cancel()

	if err := g.SelectProtocol(sp); err != nil {
		return nil, err
	}

	var desc SessionDescriptionEvent
	if err := (<-ch).UnmarshalData(&desc); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session description")
	}

	return &desc, nil
}

// Send encodes data as the payload for opcode code and sends it.
func (g *Gateway) Send(code OPCode, v interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()
	return g.SendCtx(ctx, code, v)
}

// SendCtx is Send with a caller-supplied context.
func (g *Gateway) SendCtx(ctx context.Context, code OPCode, v interface{}) error {
	if g.ws == nil {
		return errors.New("tried to send on a voice gateway without a connection")
	}

	op := wsutil.OP{Code: code}

	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to encode v")
		}
		op.Data = b
	}

	b, err := json.Marshal(op)
	if err != nil {
		return errors.Wrap(err, "failed to encode payload")
	}

	return g.ws.Send(ctx, b)
}
