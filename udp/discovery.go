// Package udp implements the Discord voice UDP data plane: IP discovery and
// a managed, reconnectable datagram connection carrying RTP packets.
package udp

import (
	"encoding/binary"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// packetSize is the fixed length of both the discovery request and reply,
// per Discord's legacy (non-extended) IP discovery format.
const packetSize = 70

// DiscoveryTimeout bounds how long Discover waits for a reply.
var DiscoveryTimeout = 5 * time.Second

// ErrDiscoveryTimeout is returned when no reply arrives within
// DiscoveryTimeout.
var ErrDiscoveryTimeout = errors.New("udp: ip discovery timed out")

// ErrMalformedReply is returned when the peer's reply isn't a well-formed
// 70-byte discovery packet.
var ErrMalformedReply = errors.New("udp: malformed ip discovery reply")

// Discover performs the SSRC IP-discovery handshake described at
// https://discord.com/developers/docs/topics/voice-connections#ip-discovery
// over an already-connected UDP socket, returning the client's externally
// visible address as seen by Discord's voice server.
func Discover(conn *net.UDPConn, ssrc uint32) (ip string, port uint16, err error) {
	req := make([]byte, packetSize)
	binary.BigEndian.PutUint32(req[0:4], ssrc)

	if _, err := conn.Write(req); err != nil {
		return "", 0, errors.Wrap(err, "failed to send discovery request")
	}

	if err := conn.SetReadDeadline(time.Now().Add(DiscoveryTimeout)); err != nil {
		return "", 0, errors.Wrap(err, "failed to set read deadline")
	}
	defer conn.SetReadDeadline(time.Time{})

	reply := make([]byte, packetSize)
	n, err := conn.Read(reply)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return "", 0, ErrDiscoveryTimeout
		}
		return "", 0, errors.Wrap(err, "failed to read discovery reply")
	}

	return ParseReply(reply[:n])
}

// ParseReply extracts the IP and port from a raw 70-byte discovery reply. It
// is split out from Discover so the wire-format parsing can be exercised
// without a live socket.
func ParseReply(reply []byte) (ip string, port uint16, err error) {
	if len(reply) != packetSize {
		return "", 0, ErrMalformedReply
	}

	ipField := string(reply[4:68])
	nullPos := strings.IndexByte(ipField, 0)
	if nullPos < 0 {
		return "", 0, ErrMalformedReply
	}

	ip = ipField[:nullPos]
	// The port is the one little-endian field in an otherwise big-endian
	// protocol; do not generalize this to the rest of the packet.
	port = binary.LittleEndian.Uint16(reply[68:70])

	return ip, port, nil
}
