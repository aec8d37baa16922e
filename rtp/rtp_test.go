package rtp

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/nacl/secretbox"
)

func TestPacketizeHeaderLayout(t *testing.T) {
	p := NewPacketizer(0xDEADBEEF)

	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	if err := p.SetSecretKey(key[:]); err != nil {
		t.Fatalf("SetSecretKey: %v", err)
	}

	packet, err := p.Packetize([]byte("opus-frame"), 960)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}

	if packet[0] != 0x80 || packet[1] != 0x78 {
		t.Fatalf("unexpected version/payload-type bytes: %x %x", packet[0], packet[1])
	}

	if got := packet[8:12]; !bytes.Equal(got, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("unexpected ssrc bytes: %x", got)
	}
}

func TestPacketizeCountersIncrement(t *testing.T) {
	p := NewPacketizer(1)

	var key [32]byte
	p.SetSecretKey(key[:])

	for i := 0; i < 3; i++ {
		if _, err := p.Packetize([]byte("x"), 960); err != nil {
			t.Fatalf("Packetize: %v", err)
		}
	}

	if p.Sequence() != 3 {
		t.Fatalf("sequence = %d, want 3", p.Sequence())
	}
	if p.Timestamp() != 960*3 {
		t.Fatalf("timestamp = %d, want %d", p.Timestamp(), 960*3)
	}
}

func TestPacketizeRejectsBadKeyLength(t *testing.T) {
	p := NewPacketizer(1)

	if err := p.SetSecretKey([]byte("too-short")); err != ErrCryptoUnavailable {
		t.Fatalf("err = %v, want ErrCryptoUnavailable", err)
	}

	if _, err := p.Packetize([]byte("x"), 960); err != ErrCryptoUnavailable {
		t.Fatalf("Packetize without key: err = %v, want ErrCryptoUnavailable", err)
	}
}

func TestPacketizeNonceMatchesHeader(t *testing.T) {
	p := NewPacketizer(42)

	var key [32]byte
	for i := range key {
		key[i] = byte(255 - i)
	}
	p.SetSecretKey(key[:])

	payload := []byte("hello, voice")
	packet, err := p.Packetize(payload, 960)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}

	header := append([]byte(nil), packet[:HeaderSize]...)

	var nonce [NonceSize]byte
	copy(nonce[:], header)

	opened, ok := secretbox.Open(nil, packet[HeaderSize:], &nonce, &key)
	if !ok {
		t.Fatal("secretbox.Open failed with header-derived nonce")
	}
	if !bytes.Equal(opened, payload) {
		t.Fatalf("decrypted payload = %q, want %q", opened, payload)
	}
}
