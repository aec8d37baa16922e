package voice

import (
	"context"
	"testing"
	"time"

	"github.com/diamondburned/arikawa/discord"
	"github.com/diamondburned/arikawa/gateway"
)

func newTestSupervisor() *Supervisor {
	s := NewSupervisor(gateway.NewGateway("ws://127.0.0.1:0", "token"), discord.UserID(1))
	s.ErrorLog = func(error) {}
	return s
}

func TestConnectionFlowStateString(t *testing.T) {
	states := []ConnectionFlowState{
		StateDisconnected, StateSetGuildVoiceState, StateGotVoiceStateUpdate,
		StateGotVoiceServerUpdate, StateGotBothVoiceUpdates, StateWebsocketConnected,
		StateGotWebsocketReady, StateGotIPDiscovery, StateConnected,
	}

	seen := map[string]bool{}
	for _, state := range states {
		s := state.String()
		if s == "unknown" || s == "" {
			t.Fatalf("state %d stringified to %q", state, s)
		}
		if seen[s] {
			t.Fatalf("duplicate string %q", s)
		}
		seen[s] = true
	}

	if got := ConnectionFlowState(255).String(); got != "unknown" {
		t.Fatalf("expected unknown for an out-of-range state, got %q", got)
	}
}

func TestNewSupervisorStartsDisconnected(t *testing.T) {
	s := newTestSupervisor()
	if s.State() != StateDisconnected {
		t.Fatalf("expected StateDisconnected, got %v", s.State())
	}
}

func TestHandleVoiceStateUpdateIgnoresOtherUsers(t *testing.T) {
	s := newTestSupervisor()
	s.setState(StateSetGuildVoiceState)

	s.HandleVoiceStateUpdate(&gateway.VoiceStateUpdateEvent{
		UserID:    discord.UserID(2),
		GuildID:   discord.GuildID(1),
		ChannelID: discord.ChannelID(1),
		SessionID: "other",
	})

	if s.State() != StateSetGuildVoiceState {
		t.Fatalf("state changed on an event for a different user: %v", s.State())
	}
}

func TestHandleVoiceStateThenServerUpdateReachesBothUpdates(t *testing.T) {
	s := newTestSupervisor()
	s.guildID = discord.GuildID(1)
	s.setState(StateSetGuildVoiceState)

	s.HandleVoiceStateUpdate(&gateway.VoiceStateUpdateEvent{
		UserID:    s.userID,
		GuildID:   discord.GuildID(1),
		ChannelID: discord.ChannelID(42),
		SessionID: "sess",
	})
	if s.State() != StateGotVoiceStateUpdate {
		t.Fatalf("expected StateGotVoiceStateUpdate, got %v", s.State())
	}

	s.HandleVoiceServerUpdate(&gateway.VoiceServerUpdateEvent{
		GuildID:  discord.GuildID(1),
		Token:    "tok",
		Endpoint: "endpoint.example",
	})
	if s.State() != StateGotBothVoiceUpdates {
		t.Fatalf("expected StateGotBothVoiceUpdates, got %v", s.State())
	}
	if s.sessionID != "sess" || s.token != "tok" || s.endpoint != "endpoint.example" {
		t.Fatalf("flow state wasn't captured: %+v", s)
	}
}

func TestHandleVoiceServerUpdateFirstReachesBothUpdates(t *testing.T) {
	s := newTestSupervisor()
	s.guildID = discord.GuildID(1)
	s.setState(StateSetGuildVoiceState)

	s.HandleVoiceServerUpdate(&gateway.VoiceServerUpdateEvent{
		GuildID:  discord.GuildID(1),
		Token:    "tok",
		Endpoint: "endpoint.example",
	})
	if s.State() != StateGotVoiceServerUpdate {
		t.Fatalf("expected StateGotVoiceServerUpdate, got %v", s.State())
	}

	s.HandleVoiceStateUpdate(&gateway.VoiceStateUpdateEvent{
		UserID:    s.userID,
		GuildID:   discord.GuildID(1),
		ChannelID: discord.ChannelID(42),
		SessionID: "sess",
	})
	if s.State() != StateGotBothVoiceUpdates {
		t.Fatalf("expected StateGotBothVoiceUpdates, got %v", s.State())
	}
}

func TestHandleVoiceStateUpdateWhileConnectingWakesWaiter(t *testing.T) {
	s := newTestSupervisor()
	s.guildID = discord.GuildID(1)
	s.connecting = true

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- s.waitForIncoming(ctx, 1)
	}()

	time.Sleep(10 * time.Millisecond)

	s.HandleVoiceStateUpdate(&gateway.VoiceStateUpdateEvent{
		UserID:    s.userID,
		GuildID:   discord.GuildID(1),
		ChannelID: discord.ChannelID(7),
		SessionID: "sess",
	})

	if err := <-done; err != nil {
		t.Fatalf("waitForIncoming returned an error: %v", err)
	}
	if s.sessionID != "sess" || s.channelID != discord.ChannelID(7) {
		t.Fatalf("connecting-path fields weren't set: %+v", s)
	}
}

func TestHandleVoiceStateUpdateDisconnectedNullChannelClearsExpectingDisconnect(t *testing.T) {
	s := newTestSupervisor()
	s.expectingDisconnect = true
	s.setState(StateDisconnected)

	s.HandleVoiceStateUpdate(&gateway.VoiceStateUpdateEvent{
		UserID:    s.userID,
		ChannelID: discord.NullChannelID,
	})

	s.mu.Lock()
	expecting := s.expectingDisconnect
	s.mu.Unlock()

	if expecting {
		t.Fatal("expectingDisconnect should have been cleared")
	}
}

func TestConnectCtxRejectsConcurrentConnect(t *testing.T) {
	s := newTestSupervisor()
	s.connecting = true

	err := s.ConnectCtx(context.Background(), discord.GuildID(1), discord.ChannelID(1), false, false)
	if err != ErrAlreadyConnecting {
		t.Fatalf("expected ErrAlreadyConnecting, got %v", err)
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	s := newTestSupervisor()
	if err := s.Send([]byte{1, 2, 3}, 960); err == nil {
		t.Fatal("expected an error sending before a connection is established")
	}
}

func TestSpeakingBeforeConnectFails(t *testing.T) {
	s := newTestSupervisor()
	if err := s.Speaking(0); err == nil {
		t.Fatal("expected an error announcing speaking before a connection is established")
	}
}

func TestRegisterPacketCallbackBeforeConnectFails(t *testing.T) {
	s := newTestSupervisor()
	if _, ok := s.RegisterPacketCallback(func([]byte) {}); ok {
		t.Fatal("expected registration to fail before a connection is established")
	}
}
