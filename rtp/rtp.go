// Package rtp assembles Discord voice data-plane packets: a 12-byte RTP
// header followed by an xsalsa20_poly1305-encrypted Opus payload.
package rtp

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// HeaderSize is the length, in bytes, of the RTP header prefixed to every
// packet.
const HeaderSize = 12

// NonceSize is the length of the secretbox nonce. The header is copied into
// its first 12 bytes; the rest is left zero.
const NonceSize = 24

// ErrCryptoUnavailable is returned by SetSecretKey when given a key that
// isn't exactly 32 bytes, the size xsalsa20_poly1305 requires.
var ErrCryptoUnavailable = errors.New("rtp: secret key must be exactly 32 bytes")

// Packetizer builds successive RTP packets for one voice connection. It is
// not safe for concurrent use: the sequence/timestamp counters are owned
// exclusively by the single producer that calls Packetize (the AudioPacer).
type Packetizer struct {
	ssrc uint32

	sequence  uint16
	timestamp uint32

	secretKey [32]byte
	keySet    bool
}

// NewPacketizer creates a Packetizer for the given SSRC. The secret key must
// be set with SetSecretKey before the first call to Packetize.
func NewPacketizer(ssrc uint32) *Packetizer {
	return &Packetizer{ssrc: ssrc}
}

// SetSecretKey installs the session's encryption key, as received in
// SESSION_DESCRIPTION. It must be exactly 32 bytes.
func (p *Packetizer) SetSecretKey(key []byte) error {
	if len(key) != 32 {
		return ErrCryptoUnavailable
	}

	copy(p.secretKey[:], key)
	p.keySet = true
	return nil
}

// Reset zeroes the sequence and timestamp counters, used when a session
// reconnects and restarts its RTP stream.
func (p *Packetizer) Reset() {
	p.sequence = 0
	p.timestamp = 0
}

// Packetize encrypts an Opus frame and returns the full wire packet: the
// 12-byte header followed by the authenticated ciphertext. samplesPerFrame
// is added to the running timestamp, wrapping at 2^32, after this call;
// sequence likewise wraps at 2^16.
func (p *Packetizer) Packetize(opus []byte, samplesPerFrame uint32) ([]byte, error) {
	if !p.keySet {
		return nil, ErrCryptoUnavailable
	}

	header := make([]byte, HeaderSize)
	header[0] = 0x80
	header[1] = 0x78
	binary.BigEndian.PutUint16(header[2:4], p.sequence)
	binary.BigEndian.PutUint32(header[4:8], p.timestamp)
	binary.BigEndian.PutUint32(header[8:12], p.ssrc)

	var nonce [NonceSize]byte
	copy(nonce[:], header)

	packet := secretbox.Seal(header, opus, &nonce, &p.secretKey)

	p.sequence++
	p.timestamp += samplesPerFrame

	return packet, nil
}

// Sequence returns the sequence number that will be used for the next
// packet.
func (p *Packetizer) Sequence() uint16 { return p.sequence }

// Timestamp returns the timestamp that will be used for the next packet.
func (p *Packetizer) Timestamp() uint32 { return p.timestamp }
