package gateway

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// DefaultPresence is used as the default presence when initializing a new
// Gateway.
var DefaultPresence *PresenceUpdateCommand

// Identifier wraps IdentifyCommand with the rate limiters IDENTIFY must
// respect: one request per 5 seconds per shard, and 1000 per 24 hours
// across the whole application.
type Identifier struct {
	IdentifyCommand

	IdentifyShortLimit  *rate.Limiter `json:"-"`
	IdentifyGlobalLimit *rate.Limiter `json:"-"`
}

// DefaultIdentifier creates a new default Identifier for token.
func DefaultIdentifier(token string) Identifier {
	return NewIdentifier(DefaultIdentifyCommand(token))
}

// NewIdentifier creates an Identifier with the given command and default
// rate limiters.
func NewIdentifier(data IdentifyCommand) Identifier {
	return Identifier{
		IdentifyCommand:     data,
		IdentifyShortLimit:  rate.NewLimiter(rate.Every(5*time.Second), 1),
		IdentifyGlobalLimit: rate.NewLimiter(rate.Every(24*time.Hour), 1000),
	}
}

// Wait blocks until both rate limiters (if set) allow another IDENTIFY.
func (id *Identifier) Wait(ctx context.Context) error {
	if id.IdentifyShortLimit != nil {
		if err := id.IdentifyShortLimit.Wait(ctx); err != nil {
			return errors.Wrap(err, "can't wait for short limit")
		}
	}

	if id.IdentifyGlobalLimit != nil {
		if err := id.IdentifyGlobalLimit.Wait(ctx); err != nil {
			return errors.Wrap(err, "can't wait for global limit")
		}
	}

	return nil
}

// DefaultIdentity is used as the default identity when initializing a new
// Gateway.
var DefaultIdentity = IdentifyProperties{
	OS:      runtime.GOOS,
	Browser: "arikawa",
	Device:  "arikawa",
}

// IdentifyCommand is the op 2 IDENTIFY payload. It carries only what a bot
// connection needs: intents, capabilities, and client state are accounts
// the original Discord client juggles that this core never authenticates
// as.
type IdentifyCommand struct {
	Token      string             `json:"token"`
	Properties IdentifyProperties `json:"properties"`

	Compress       bool `json:"compress,omitempty"`
	LargeThreshold uint `json:"large_threshold,omitempty"`

	Shard *Shard `json:"shard,omitempty"`

	Presence *PresenceUpdateCommand `json:"presence,omitempty"`
}

// DefaultIdentifyCommand creates a default IdentifyCommand for token.
func DefaultIdentifyCommand(token string) IdentifyCommand {
	return IdentifyCommand{
		Token:      token,
		Properties: DefaultIdentity,
		Presence:   DefaultPresence,

		Compress:       true,
		LargeThreshold: 250,
	}
}

// SetShard sets the shard configuration inside the IdentifyCommand.
func (i *IdentifyCommand) SetShard(id, num int) {
	if i.Shard == nil {
		i.Shard = new(Shard)
	}
	i.Shard[0], i.Shard[1] = id, num
}

// IdentifyProperties describes the client environment sent with IDENTIFY.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Shard holds a bot's shard ID and the total shard count. The first element
// is the shard's own ID, obtainable through ShardID; the second is the
// total, obtainable through NumShards.
type Shard [2]int

// DefaultShard is a single unsharded connection: shard 0 of 1.
var DefaultShard = &Shard{0, 1}

// ShardID returns the current shard's ID.
func (s Shard) ShardID() int {
	return s[0]
}

// NumShards returns the total number of shards.
func (s Shard) NumShards() int {
	return s[1]
}
