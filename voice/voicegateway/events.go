package voicegateway

import (
	"strconv"

	"github.com/diamondburned/arikawa/discord"
)

// ReadyEvent is the op 2 READY payload, giving the UDP endpoint and SSRC.
type ReadyEvent struct {
	IP    string   `json:"ip"`
	Modes []string `json:"modes"`
	Port  int      `json:"port"`
	SSRC  uint32   `json:"ssrc"`
}

// Addr formats the UDP discovery address as host:port.
func (r ReadyEvent) Addr() string {
	return r.IP + ":" + strconv.Itoa(r.Port)
}

// SessionDescriptionEvent is the op 4 SESSION_DESCRIPTION payload, carrying
// the secret key used to encrypt outgoing RTP.
type SessionDescriptionEvent struct {
	Mode      string   `json:"mode"`
	SecretKey [32]byte `json:"secret_key"`
}

// SpeakingEvent is the op 5 SPEAKING payload, received when another SSRC
// starts or stops transmitting.
type SpeakingEvent SpeakingData

// HelloEvent is the op 8 HELLO payload.
type HelloEvent struct {
	HeartbeatInterval discord.Milliseconds `json:"heartbeat_interval"`
}

// ClientConnectEvent is the undocumented op 12 payload sent when a peer
// joins the channel. It is parsed but otherwise unused by this core.
type ClientConnectEvent struct {
	UserID    discord.UserID `json:"user_id"`
	AudioSSRC uint32         `json:"audio_ssrc"`
	VideoSSRC uint32         `json:"video_ssrc"`
}

// ClientDisconnectEvent is the undocumented op 13 payload sent when a peer
// leaves the channel. Parsed but otherwise unused.
type ClientDisconnectEvent struct {
	UserID discord.UserID `json:"user_id"`
}
