package gateway

import "github.com/diamondburned/arikawa/discord"

// Event is implemented by every dispatch (op 0) payload this core knows how
// to decode. It deliberately carries no methods beyond being a distinct
// type: the dispatch table in EventCreator is what does the real work,
// replacing a reflect/lowercase-name lookup with an explicit mapping.
type Event interface{}

// ReadyEvent is sent once after a successful IDENTIFY.
type ReadyEvent struct {
	Version          int    `json:"v"`
	SessionID        string `json:"session_id"`
	Shard            *Shard `json:"shard,omitempty"`
	ResumeGatewayURL string `json:"resume_gateway_url,omitempty"`
}

// ResumedEvent is sent once after a successful RESUME.
type ResumedEvent struct {
	Trace []string `json:"_trace,omitempty"`
}

// VoiceStateUpdateEvent mirrors the subset of Discord's VoiceState payload
// the Supervisor needs: who moved, to which channel, under which session.
type VoiceStateUpdateEvent struct {
	GuildID   discord.GuildID   `json:"guild_id"`
	ChannelID discord.ChannelID `json:"channel_id"` // null: the user left voice
	UserID    discord.UserID    `json:"user_id"`
	SessionID string            `json:"session_id"`
	SelfMute  bool              `json:"self_mute"`
	SelfDeaf  bool              `json:"self_deaf"`
}

// VoiceServerUpdateEvent delivers the endpoint/token pair needed to open the
// voice signaling websocket.
type VoiceServerUpdateEvent struct {
	Token    string          `json:"token"`
	GuildID  discord.GuildID `json:"guild_id"`
	Endpoint string          `json:"endpoint"`
}

// GuildSyncEvent acknowledges a GUILD_SYNC request; its payload isn't needed
// by this core beyond knowing the sync completed.
type GuildSyncEvent struct {
	ID discord.GuildID `json:"id"`
}

// EventCreator is the explicit dispatch table keyed by wire event name,
// replacing a reflective lowercase-name-to-handler lookup: each entry
// allocates the concrete Event type that op.t names.
var EventCreator = map[string]func() Event{
	"READY":               func() Event { return new(ReadyEvent) },
	"RESUMED":             func() Event { return new(ResumedEvent) },
	"VOICE_STATE_UPDATE":  func() Event { return new(VoiceStateUpdateEvent) },
	"VOICE_SERVER_UPDATE": func() Event { return new(VoiceServerUpdateEvent) },
	"GUILD_SYNC":          func() Event { return new(GuildSyncEvent) },
}
