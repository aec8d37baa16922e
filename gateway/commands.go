package gateway

import (
	"context"

	"github.com/diamondburned/arikawa/discord"
)

// ResumeCommand is the op 6 RESUME payload.
type ResumeCommand struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// PresenceUpdateCommand is the op 3 PRESENCE_UPDATE payload.
type PresenceUpdateCommand struct {
	Since      int64    `json:"since"` // unix ms, 0 if not idle
	Activities []string `json:"activities,omitempty"`
	Status     string   `json:"status"`
	AFK        bool     `json:"afk"`
}

// VoiceStateUpdateCommand is the op 4 VOICE_STATE payload, used to join,
// move between, or leave a voice channel.
type VoiceStateUpdateCommand struct {
	GuildID   discord.GuildID   `json:"guild_id"`
	ChannelID discord.ChannelID `json:"channel_id"` // null to leave voice
	SelfMute  bool              `json:"self_mute"`
	SelfDeaf  bool              `json:"self_deaf"`
}

// UpdateVoiceState sends VOICE_STATE_UPDATE (op 4), asking the control
// plane to join, move, or leave a voice channel. A VoiceConnectionSupervisor
// calls this and then waits for the paired VoiceStateUpdateEvent and
// VoiceServerUpdateEvent dispatches to arrive off Events.
func (g *Gateway) UpdateVoiceState(guildID discord.GuildID, channelID discord.ChannelID, selfMute, selfDeaf bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.WSTimeout)
	defer cancel()
	return g.UpdateVoiceStateCtx(ctx, guildID, channelID, selfMute, selfDeaf)
}

// UpdateVoiceStateCtx is UpdateVoiceState with a caller-supplied context.
func (g *Gateway) UpdateVoiceStateCtx(
	ctx context.Context, guildID discord.GuildID, channelID discord.ChannelID, selfMute, selfDeaf bool) error {

	return g.SendCtx(ctx, VoiceStateUpdateOP, VoiceStateUpdateCommand{
		GuildID:   guildID,
		ChannelID: channelID,
		SelfMute:  selfMute,
		SelfDeaf:  selfDeaf,
	})
}

// RequestGuildMembersCommand is the op 8 REQUEST_GUILD_MEMBERS payload.
type RequestGuildMembersCommand struct {
	GuildID   []discord.GuildID `json:"guild_id"`
	UserIDs   []discord.UserID  `json:"user_ids,omitempty"`
	Query     string            `json:"query,omitempty"`
	Limit     uint              `json:"limit"`
	Presences bool              `json:"presences,omitempty"`
}

// GuildSyncCommand is the op 12 GUILD_SYNC payload, an undocumented
// user-account operation kept here parse-only for completeness.
type GuildSyncCommand []discord.GuildID
