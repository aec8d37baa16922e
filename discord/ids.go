package discord

// GuildID, ChannelID, and UserID are distinct Snowflake types so the
// compiler catches an accidental swap (passing a channel where a guild is
// expected), the way the teacher's discord package distinguishes its ID
// types.
type (
	GuildID   Snowflake
	ChannelID Snowflake
	UserID    Snowflake
)

const (
	NullGuildID   GuildID   = GuildID(NullSnowflake)
	NullChannelID ChannelID = ChannelID(NullSnowflake)
	NullUserID    UserID    = UserID(NullSnowflake)
)

func (id GuildID) String() string    { return Snowflake(id).String() }
func (id GuildID) IsValid() bool     { return Snowflake(id).IsValid() }
func (id ChannelID) String() string  { return Snowflake(id).String() }
func (id ChannelID) IsValid() bool   { return Snowflake(id).IsValid() }
func (id UserID) String() string     { return Snowflake(id).String() }
func (id UserID) IsValid() bool      { return Snowflake(id).IsValid() }

func (id *GuildID) UnmarshalJSON(v []byte) error {
	return (*Snowflake)(id).UnmarshalJSON(v)
}

func (id GuildID) MarshalJSON() ([]byte, error) {
	return Snowflake(id).MarshalJSON()
}

func (id *ChannelID) UnmarshalJSON(v []byte) error {
	return (*Snowflake)(id).UnmarshalJSON(v)
}

func (id ChannelID) MarshalJSON() ([]byte, error) {
	return Snowflake(id).MarshalJSON()
}

func (id *UserID) UnmarshalJSON(v []byte) error {
	return (*Snowflake)(id).UnmarshalJSON(v)
}

func (id UserID) MarshalJSON() ([]byte, error) {
	return Snowflake(id).MarshalJSON()
}
