package discord

// VoiceState is a user's voice connection status within a guild, as
// delivered by a VOICE_STATE_UPDATE dispatch. The entity-model Member field
// the full API exposes here is dropped: this core never caches members.
type VoiceState struct {
	GuildID   GuildID   `json:"guild_id"`
	ChannelID ChannelID `json:"channel_id"`
	UserID    UserID    `json:"user_id"`
	SessionID string    `json:"session_id"`

	Deaf bool `json:"deaf"`
	Mute bool `json:"mute"`

	SelfDeaf   bool `json:"self_deaf"`
	SelfMute   bool `json:"self_mute"`
	SelfStream bool `json:"self_stream,omitempty"`
	SelfVideo  bool `json:"self_video,omitempty"`
	Suppress   bool `json:"suppress"`

	RequestToSpeakTimestamp *Timestamp `json:"request_to_speak_timestamp"`
}
