package voicegateway

import (
	"context"
	"testing"
)

func TestIdentifyCtxMissingFields(t *testing.T) {
	g := New(State{})

	if err := g.IdentifyCtx(context.Background()); err != ErrMissingForIdentify {
		t.Fatalf("expected ErrMissingForIdentify, got %v", err)
	}
}

func TestResumeCtxMissingFields(t *testing.T) {
	g := New(State{GuildID: 123})

	if err := g.ResumeCtx(context.Background()); err != ErrMissingForResume {
		t.Fatalf("expected ErrMissingForResume, got %v", err)
	}
}

func TestSpeakingFlags(t *testing.T) {
	flag := Microphone | Priority

	if flag&Microphone == 0 {
		t.Fatal("expected Microphone bit set")
	}
	if flag&Soundshare != 0 {
		t.Fatal("did not expect Soundshare bit set")
	}
}

func TestReadyAddr(t *testing.T) {
	r := ReadyEvent{IP: "1.2.3.4", Port: 9999}

	if r.Addr() != "1.2.3.4:9999" {
		t.Fatalf("unexpected addr: %s", r.Addr())
	}
}
