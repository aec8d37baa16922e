package gateway

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/diamondburned/arikawa/discord"
)

func TestRequestGuildMembersCommand(t *testing.T) {
	assert := func(cmd interface{}, want map[string]interface{}) {
		b, err := json.Marshal(cmd)
		if err != nil {
			t.Fatal("failed to marshal command:", err)
		}

		var got map[string]interface{}
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatal("failed to unmarshal command:", err)
		}

		if !reflect.DeepEqual(got, want) {
			t.Fatalf("mismatched command\ngot:  %#v\nwant: %#v", got, want)
		}
	}

	t.Run("userIDs", func(t *testing.T) {
		cmd := RequestGuildMembersCommand{
			GuildID: []discord.GuildID{123},
			UserIDs: []discord.UserID{456},
		}

		assert(&cmd, map[string]interface{}{
			"guild_id": []interface{}{"123"},
			"user_ids": []interface{}{"456"},
			"limit":    float64(0),
		})
	})

	t.Run("query", func(t *testing.T) {
		cmd := RequestGuildMembersCommand{
			GuildID: []discord.GuildID{123},
			Query:   "abc",
			Limit:   5,
		}

		assert(&cmd, map[string]interface{}{
			"guild_id": []interface{}{"123"},
			"query":    "abc",
			"limit":    float64(5),
		})
	})
}

func TestVoiceStateUpdateCommand(t *testing.T) {
	cmd := VoiceStateUpdateCommand{
		GuildID:   123,
		ChannelID: discord.NullChannelID,
		SelfMute:  true,
	}

	b, err := json.Marshal(&cmd)
	if err != nil {
		t.Fatal("failed to marshal:", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal("failed to unmarshal:", err)
	}

	if got["channel_id"] != nil {
		t.Fatalf("expected null channel_id, got %#v", got["channel_id"])
	}
	if got["self_mute"] != true {
		t.Fatalf("expected self_mute true, got %#v", got["self_mute"])
	}
}

func TestEventCreator(t *testing.T) {
	for name, fn := range EventCreator {
		if fn() == nil {
			t.Errorf("EventCreator[%q] returned nil", name)
		}
	}
}
