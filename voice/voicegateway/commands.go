package voicegateway

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/diamondburned/arikawa/discord"
)

var (
	ErrMissingForIdentify = errors.New("missing GuildID, UserID, SessionID, or Token for identify")
	ErrMissingForResume   = errors.New("missing GuildID, SessionID, or Token for resuming")
)

// IdentifyData is the op 0 IDENTIFY payload.
type IdentifyData struct {
	GuildID   discord.GuildID `json:"server_id"`
	UserID    discord.UserID  `json:"user_id"`
	SessionID string          `json:"session_id"`
	Token     string          `json:"token"`
}

// Identify sends IDENTIFY (op 0).
func (g *Gateway) Identify() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()
	return g.IdentifyCtx(ctx)
}

// IdentifyCtx is Identify with a caller-supplied context.
func (g *Gateway) IdentifyCtx(ctx context.Context) error {
	guildID := g.state.GuildID
	userID := g.state.UserID
	sessionID := g.state.SessionID
	token := g.state.Token

	if !guildID.IsValid() || !userID.IsValid() || sessionID == "" || token == "" {
		return ErrMissingForIdentify
	}

	return g.SendCtx(ctx, IdentifyOP, IdentifyData{
		GuildID:   guildID,
		UserID:    userID,
		SessionID: sessionID,
		Token:     token,
	})
}

// SelectProtocol is the op 1 SELECT_PROTOCOL payload, sent once IP discovery
// completes to announce the external address and chosen encryption mode.
type SelectProtocol struct {
	Protocol string             `json:"protocol"`
	Data     SelectProtocolData `json:"data"`
}

type SelectProtocolData struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

// SelectProtocol sends SELECT_PROTOCOL (op 1).
func (g *Gateway) SelectProtocol(data SelectProtocol) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()
	return g.SelectProtocolCtx(ctx, data)
}

// SelectProtocolCtx is SelectProtocol with a caller-supplied context.
func (g *Gateway) SelectProtocolCtx(ctx context.Context, data SelectProtocol) error {
	return g.SendCtx(ctx, SelectProtocolOP, data)
}

// Heartbeat sends HEARTBEAT (op 3).
func (g *Gateway) Heartbeat() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()
	return g.HeartbeatCtx(ctx)
}

// HeartbeatCtx implements wsutil.EventLoopHandler.
func (g *Gateway) HeartbeatCtx(ctx context.Context) error {
	return g.SendCtx(ctx, HeartbeatOP, time.Now().UnixNano())
}

// SpeakingFlag marks the kind of audio a SPEAKING payload announces.
type SpeakingFlag uint64

const (
	Microphone SpeakingFlag = 1 << iota
	Soundshare
	Priority
)

// SpeakingData is the op 5 SPEAKING payload.
type SpeakingData struct {
	Speaking SpeakingFlag `json:"speaking"`
	Delay    int          `json:"delay"`
	SSRC     uint32       `json:"ssrc"`
}

// Speaking sends SPEAKING (op 5) for the session's own SSRC.
func (g *Gateway) Speaking(flag SpeakingFlag) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()
	return g.SpeakingCtx(ctx, flag)
}

// SpeakingCtx is Speaking with a caller-supplied context.
func (g *Gateway) SpeakingCtx(ctx context.Context, flag SpeakingFlag) error {
	g.mutex.RLock()
	ssrc := g.ready.SSRC
	g.mutex.RUnlock()

	return g.SendCtx(ctx, SpeakingOP, SpeakingData{
		Speaking: flag,
		Delay:    0,
		SSRC:     ssrc,
	})
}

// ResumeData is the op 7 RESUME payload.
type ResumeData struct {
	GuildID   discord.GuildID `json:"server_id"`
	SessionID string          `json:"session_id"`
	Token     string          `json:"token"`
}

// Resume sends RESUME (op 7).
func (g *Gateway) Resume() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()
	return g.ResumeCtx(ctx)
}

// ResumeCtx is Resume with a caller-supplied context.
func (g *Gateway) ResumeCtx(ctx context.Context) error {
	guildID := g.state.GuildID
	sessionID := g.state.SessionID
	token := g.state.Token

	if !guildID.IsValid() || sessionID == "" || token == "" {
		return ErrMissingForResume
	}

	return g.SendCtx(ctx, ResumeOP, ResumeData{
		GuildID:   guildID,
		SessionID: sessionID,
		Token:     token,
	})
}
