// Package voice implements the VoiceConnectionSupervisor: the component
// that fuses the gateway's voice_state_update/voice_server_update dispatch
// pair, the voice signaling handshake, and UDP IP discovery into a single
// connected voice session, and supervises it across reconnects.
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/diamondburned/arikawa/discord"
	"github.com/diamondburned/arikawa/gateway"
	"github.com/diamondburned/arikawa/internal/wsutil"
	"github.com/diamondburned/arikawa/rtp"
	"github.com/diamondburned/arikawa/udp"
	"github.com/diamondburned/arikawa/voice/voicegateway"
)

// Protocol is the encryption protocol this core selects during handshake.
const Protocol = "xsalsa20_poly1305"

// ConnectionFlowState is one of the nine states a VoiceConnectionSupervisor
// moves through on its way to, and while, connected.
type ConnectionFlowState uint8

const (
	StateDisconnected ConnectionFlowState = iota
	StateSetGuildVoiceState
	StateGotVoiceStateUpdate
	StateGotVoiceServerUpdate
	StateGotBothVoiceUpdates
	StateWebsocketConnected
	StateGotWebsocketReady
	StateGotIPDiscovery
	StateConnected
)

func (s ConnectionFlowState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSetGuildVoiceState:
		return "set_guild_voice_state"
	case StateGotVoiceStateUpdate:
		return "got_voice_state_update"
	case StateGotVoiceServerUpdate:
		return "got_voice_server_update"
	case StateGotBothVoiceUpdates:
		return "got_both_voice_updates"
	case StateWebsocketConnected:
		return "websocket_connected"
	case StateGotWebsocketReady:
		return "got_websocket_ready"
	case StateGotIPDiscovery:
		return "got_ip_discovery"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// SupervisorConfig configures a Supervisor's reconnect and join behavior.
type SupervisorConfig struct {
	Timeout   time.Duration
	Reconnect bool
	SelfMute  bool
	SelfDeaf  bool
	Resume    bool
	Wait      bool
}

// DefaultSupervisorConfig is used by NewSupervisor.
var DefaultSupervisorConfig = SupervisorConfig{
	Timeout:   10 * time.Second,
	Reconnect: true,
	Resume:    true,
	Wait:      true,
}

// connectionAttempts bounds the connect() retry loop.
const connectionAttempts = 5

// ErrAlreadyConnecting is returned when Connect is called while one is
// already in flight.
var ErrAlreadyConnecting = errors.New("voice: already connecting")

// Supervisor owns exactly one voice connection: the voice gateway, the UDP
// socket, and the SocketReader. It is driven by voice_state_update and
// voice_server_update dispatches that the caller forwards from a
// gateway.Gateway's Events channel.
type Supervisor struct {
	Config SupervisorConfig

	ErrorLog func(error)

	control *gateway.Gateway
	userID  discord.UserID

	mu    sync.Mutex
	state ConnectionFlowState

	guildID   discord.GuildID
	channelID discord.ChannelID
	sessionID string
	token     string
	endpoint  string

	expectingDisconnect bool
	connecting          bool
	incoming            chan struct{}

	vgw      *voicegateway.Gateway
	udpConn  *udp.Manager
	reader   *SocketReader
	readerWG sync.WaitGroup

	packetizer *rtp.Packetizer

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewSupervisor creates a Supervisor that issues voice state updates over
// control and identifies as userID. Connect must be called to join a
// channel.
func NewSupervisor(control *gateway.Gateway, userID discord.UserID) *Supervisor {
	return &Supervisor{
		Config:   DefaultSupervisorConfig,
		ErrorLog: wsutil.WSError,
		control:  control,
		userID:   userID,
		udpConn:  udp.NewManager(),
		incoming: make(chan struct{}, 2),
	}
}

// State returns the current flow state.
func (s *Supervisor) State() ConnectionFlowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state ConnectionFlowState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// HandleVoiceStateUpdate feeds a dispatched VoiceStateUpdateEvent for our
// own user into the flow machine. Callers forward every such event off the
// control gateway's Events channel; events for other users are ignored.
func (s *Supervisor) HandleVoiceStateUpdate(ev *gateway.VoiceStateUpdateEvent) {
	if ev.UserID != s.userID {
		return
	}

	s.mu.Lock()

	if s.connecting {
		if ev.GuildID != s.guildID {
			s.mu.Unlock()
			return
		}

		s.sessionID = ev.SessionID
		s.channelID = ev.ChannelID
		s.mu.Unlock()

		select {
		case s.incoming <- struct{}{}:
		default:
		}
		return
	}

	switch s.state {
	case StateConnected:
		if !ev.ChannelID.IsValid() {
			if s.expectingDisconnect {
				s.expectingDisconnect = false
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			if err := s.Disconnect(true); err != nil {
				s.ErrorLog(errors.Wrap(err, "failed to disconnect after external leave"))
			}
			return
		}
		if ev.ChannelID != s.channelID {
			guildID, newChannel, mute, deaf := s.guildID, ev.ChannelID, s.Config.SelfMute, s.Config.SelfDeaf
			s.channelID = ev.ChannelID
			s.mu.Unlock()

			go func() {
				if err := s.softDisconnect(StateGotVoiceStateUpdate); err != nil {
					s.ErrorLog(errors.Wrap(err, "failed to soft-disconnect on channel move"))
				}
				ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
				defer cancel()
				if err := s.ConnectCtx(ctx, guildID, newChannel, mute, deaf); err != nil {
					s.ErrorLog(errors.Wrap(err, "failed to reconnect after channel move"))
				}
			}()
			return
		}
		s.mu.Unlock()

	case StateSetGuildVoiceState:
		s.sessionID = ev.SessionID
		s.channelID = ev.ChannelID
		s.state = StateGotVoiceStateUpdate
		s.mu.Unlock()

	case StateGotVoiceServerUpdate:
		s.sessionID = ev.SessionID
		s.channelID = ev.ChannelID
		s.state = StateGotBothVoiceUpdates
		s.mu.Unlock()

	case StateDisconnected:
		if !ev.ChannelID.IsValid() {
			if s.expectingDisconnect {
				s.expectingDisconnect = false
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			if err := s.Disconnect(true); err != nil {
				s.ErrorLog(errors.Wrap(err, "failed to disconnect after external leave"))
			}
			return
		}
		s.mu.Unlock()

	default:
		s.mu.Unlock()
	}
}

// HandleVoiceServerUpdate feeds a dispatched VoiceServerUpdateEvent into the
// flow machine.
func (s *Supervisor) HandleVoiceServerUpdate(ev *gateway.VoiceServerUpdateEvent) {
	s.mu.Lock()

	if s.connecting {
		if ev.GuildID != s.guildID {
			s.mu.Unlock()
			return
		}

		s.token = ev.Token
		s.endpoint = ev.Endpoint
		s.mu.Unlock()

		select {
		case s.incoming <- struct{}{}:
		default:
		}
		return
	}

	switch s.state {
	case StateSetGuildVoiceState:
		s.token = ev.Token
		s.endpoint = ev.Endpoint
		s.state = StateGotVoiceServerUpdate
		s.mu.Unlock()

	case StateGotVoiceStateUpdate:
		s.token = ev.Token
		s.endpoint = ev.Endpoint
		s.state = StateGotBothVoiceUpdates
		s.mu.Unlock()

	case StateConnected:
		s.token = ev.Token
		s.endpoint = ev.Endpoint
		s.state = StateGotVoiceServerUpdate
		s.mu.Unlock()

		if s.vgw != nil {
			s.vgw.Close()
		}

	case StateGotVoiceServerUpdate:
		s.token = ev.Token
		s.endpoint = ev.Endpoint
		s.mu.Unlock()

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
			defer cancel()
			if err := s.openAndHandshake(ctx); err != nil {
				s.ErrorLog(errors.Wrap(err, "failed to re-handshake after voice server update"))
				return
			}
			s.startPoller()
		}()

	default:
		s.mu.Unlock()
	}
}

// Connect joins channelID in guildID, using Config.Timeout.
func (s *Supervisor) Connect(guildID discord.GuildID, channelID discord.ChannelID, selfMute, selfDeaf bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
	defer cancel()
	return s.ConnectCtx(ctx, guildID, channelID, selfMute, selfDeaf)
}

// ConnectCtx is Connect with a caller-supplied context. It runs the
// connection attempt loop: up to connectionAttempts tries, backing off
// 1 + i*2.0 seconds between tries, per attempt requesting the voice state
// update and driving the handshake to StateConnected.
func (s *Supervisor) ConnectCtx(
	ctx context.Context, guildID discord.GuildID, channelID discord.ChannelID, selfMute, selfDeaf bool) error {

	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return ErrAlreadyConnecting
	}
	s.connecting = true
	s.guildID = guildID
	s.channelID = channelID
	s.Config.SelfMute = selfMute
	s.Config.SelfDeaf = selfDeaf
	s.state = StateSetGuildVoiceState
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	var lastErr error

	for attempt := 0; attempt < connectionAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1+float64(attempt)*2.0) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := s.control.UpdateVoiceStateCtx(ctx, guildID, channelID, selfMute, selfDeaf); err != nil {
			lastErr = errors.Wrap(err, "failed to send voice state update")
			continue
		}

		if err := s.waitForIncoming(ctx, 2); err != nil {
			lastErr = errors.Wrap(err, "failed to wait for voice state/server update")
			continue
		}

		s.setState(StateGotBothVoiceUpdates)

		if err := s.openAndHandshake(ctx); err != nil {
			lastErr = err
			continue
		}

		s.startPoller()
		return nil
	}

	s.setState(StateDisconnected)
	return errors.Wrap(lastErr, "failed to connect after all attempts")
}

func (s *Supervisor) waitForIncoming(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		select {
		case <-s.incoming:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// openAndHandshake opens the voice gateway (RESUME or IDENTIFY), waits for
// READY, performs UDP discovery, and completes SELECT_PROTOCOL/
// SESSION_DESCRIPTION. It brings the Supervisor from got_both_voice_updates
// to connected.
func (s *Supervisor) openAndHandshake(ctx context.Context) error {
	s.mu.Lock()
	state := voicegateway.State{
		GuildID:   s.guildID,
		ChannelID: s.channelID,
		UserID:    s.userID,
		SessionID: s.sessionID,
		Token:     s.token,
		Endpoint:  s.endpoint,
	}
	s.mu.Unlock()

	vgw := voicegateway.New(state)
	vgw.ErrorLog = s.ErrorLog

	if err := vgw.Open(ctx); err != nil {
		return errors.Wrap(err, "failed to open voice gateway")
	}

	s.mu.Lock()
	s.vgw = vgw
	s.state = StateWebsocketConnected
	s.mu.Unlock()

	ready := vgw.Ready()
	s.setState(StateGotWebsocketReady)

	udpConn, err := s.udpConn.PauseAndDial(ctx, ready.Addr(), ready.SSRC)
	if err != nil {
		vgw.Close()
		return errors.Wrap(err, "failed to dial voice UDP")
	}

	s.setState(StateGotIPDiscovery)

	desc, err := vgw.SessionDescription(voicegateway.SelectProtocol{
		Protocol: "udp",
		Data: voicegateway.SelectProtocolData{
			Address: udpConn.GatewayIP,
			Port:    udpConn.GatewayPort,
			Mode:    Protocol,
		},
	})
	if err != nil {
		vgw.Close()
		s.udpConn.Close()
		return errors.Wrap(err, "failed to select protocol")
	}

	packetizer := rtp.NewPacketizer(ready.SSRC)
	if err := packetizer.SetSecretKey(desc.SecretKey[:]); err != nil {
		vgw.Close()
		s.udpConn.Close()
		return errors.Wrap(err, "failed to install secret key")
	}

	s.mu.Lock()
	s.packetizer = packetizer
	s.state = StateConnected
	s.mu.Unlock()

	s.udpConn.Unpause()

	if s.reader == nil {
		s.reader = NewSocketReader(s.udpConn.ReadPacket, s.ErrorLog)
		s.readerWG.Add(1)
		go func() {
			defer s.readerWG.Done()
			s.reader.Run()
		}()
	}

	if err := vgw.Speaking(voicegateway.Microphone); err != nil {
		s.ErrorLog(errors.Wrap(err, "failed to announce speaking"))
	}

	return nil
}

// startPoller runs the poller task that interprets the voice gateway's
// terminal close code once connected, per the reconnect policy table.
func (s *Supervisor) startPoller() {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.pollCancel = cancel
	s.pollDone = make(chan struct{})
	vgw := s.vgw
	done := s.pollDone
	s.mu.Unlock()

	go func() {
		defer close(done)

		select {
		case <-ctx.Done():
			return
		case err := <-vgw.Died():
			if err == nil {
				return
			}
			s.handlePollerDeath(ctx, err)
		}
	}()
}

func (s *Supervisor) handlePollerDeath(ctx context.Context, err error) {
	var closeErr *wsutil.CloseError
	code := 0
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	}

	switch {
	case code == 1000 || code == 4015:
		if derr := s.Disconnect(true); derr != nil {
			s.ErrorLog(errors.Wrap(derr, "failed to disconnect after normal close"))
		}

	case code == 4014:
		// Moved or disconnected by the server: wait for a fresh
		// voice_server_update and re-handshake rather than giving up.
		s.setState(StateGotVoiceServerUpdate)

	default:
		if !s.Config.Reconnect {
			if derr := s.Disconnect(true); derr != nil {
				s.ErrorLog(errors.Wrap(derr, "failed to disconnect after fatal close"))
			}
			return
		}

		s.mu.Lock()
		guildID, channelID, mute, deaf := s.guildID, s.channelID, s.Config.SelfMute, s.Config.SelfDeaf
		s.mu.Unlock()

		if err := s.softDisconnect(StateGotBothVoiceUpdates); err != nil {
			s.ErrorLog(errors.Wrap(err, "failed to soft-disconnect before reconnect"))
		}

		cctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
		defer cancel()

		if err := s.ConnectCtx(cctx, guildID, channelID, mute, deaf); err != nil {
			s.ErrorLog(errors.Wrap(err, "failed to reconnect after unexpected close"))
		}
	}
}

// softDisconnect cancels the poller, closes the voice gateway, pauses the
// UDP socket and the SocketReader's upstream read, and sets state, in
// preparation for an immediate reconnect.
func (s *Supervisor) softDisconnect(with ConnectionFlowState) error {
	s.mu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	vgw := s.vgw
	s.vgw = nil
	s.mu.Unlock()

	var err error
	if vgw != nil {
		err = vgw.Close()
	}

	s.udpConn.Pause()
	s.setState(with)

	return err
}

// Disconnect tears the connection down fully: closes the voice gateway,
// signals the control plane with a null-channel voice state update, clears
// session state, and closes the UDP socket. If cleanup is true it also
// stops the SocketReader.
func (s *Supervisor) Disconnect(cleanup bool) error {
	s.mu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	vgw := s.vgw
	s.vgw = nil
	guildID := s.guildID
	s.expectingDisconnect = true
	s.state = StateDisconnected
	s.sessionID, s.token, s.endpoint = "", "", ""
	s.mu.Unlock()

	var err error
	if vgw != nil {
		err = vgw.Close()
	}

	if uerr := s.control.UpdateVoiceState(guildID, discord.NullChannelID, true, true); uerr != nil {
		err = errors.Wrap(uerr, "failed to send leave voice state update")
	}

	s.udpConn.Close()

	if cleanup {
		s.mu.Lock()
		reader := s.reader
		s.reader = nil
		s.mu.Unlock()

		if reader != nil {
			reader.Stop()
			s.readerWG.Wait()
		}
	}

	return err
}

// Speaking announces the supervisor's speaking flags on the active voice
// gateway.
func (s *Supervisor) Speaking(flag voicegateway.SpeakingFlag) error {
	s.mu.Lock()
	vgw := s.vgw
	s.mu.Unlock()

	if vgw == nil {
		return errors.New("voice: not connected")
	}
	return vgw.Speaking(flag)
}

// Send implements audio.Sender: it packetizes opus through the session's
// RtpPacketizer and writes the result to the UDP socket.
func (s *Supervisor) Send(opus []byte, samplesPerFrame uint32) error {
	s.mu.Lock()
	packetizer := s.packetizer
	s.mu.Unlock()

	if packetizer == nil {
		return errors.New("voice: not connected")
	}

	packet, err := packetizer.Packetize(opus, samplesPerFrame)
	if err != nil {
		return err
	}

	_, err = s.udpConn.Write(packet)
	return err
}

// RegisterPacketCallback registers cb on the SocketReader, returning an ID
// for UnregisterPacketCallback. The SocketReader is created lazily on the
// first successful Connect; before that, it returns ok == false and cb is
// not registered.
func (s *Supervisor) RegisterPacketCallback(cb PacketCallback) (id int, ok bool) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	if reader == nil {
		return 0, false
	}
	return reader.Register(cb), true
}

// UnregisterPacketCallback removes a callback added through
// RegisterPacketCallback.
func (s *Supervisor) UnregisterPacketCallback(id int) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	if reader != nil {
		reader.Unregister(id)
	}
}
