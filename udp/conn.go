package udp

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// Dialer is the default dialer this package uses.
var Dialer = net.Dialer{}

// MaxPacketSize is the largest UDP datagram the data-plane reader accepts.
// 1460 covers Ethernet MTU minus IP/UDP headers with room to spare.
const MaxPacketSize = 1460

// Connection is a dialed voice UDP socket, after IP discovery has completed.
// It is not safe for concurrent use beyond one reader and one writer: the
// Supervisor's SocketReader owns the read side, the AudioPacer (through the
// Packetizer) owns the write side, and UDP reads/writes are independent at
// the OS level so no locking is required between them.
type Connection struct {
	conn *net.UDPConn

	GatewayIP   string
	GatewayPort uint16
	SSRC        uint32
}

// DialConnection dials host and performs IP discovery, returning a
// Connection ready for RTP traffic once SELECT_PROTOCOL completes.
func DialConnection(ctx context.Context, addr string, ssrc uint32) (*Connection, error) {
	return DialConnectionCustom(ctx, &Dialer, addr, ssrc)
}

// DialConnectionCustom is DialConnection with a caller-supplied dialer, used
// by Manager to thread through a configurable/testable dial policy.
func DialConnectionCustom(
	ctx context.Context, dialer *net.Dialer, addr string, ssrc uint32) (*Connection, error) {

	rconn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial udp host")
	}

	conn, ok := rconn.(*net.UDPConn)
	if !ok {
		rconn.Close()
		return nil, errors.New("dialer did not return a *net.UDPConn")
	}

	ip, port, err := Discover(conn, ssrc)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed ip discovery")
	}

	return &Connection{
		conn:        conn,
		GatewayIP:   ip,
		GatewayPort: port,
		SSRC:        ssrc,
	}, nil
}

// Write sends a fully-built RTP packet (header + ciphertext) over the
// socket.
func (c *Connection) Write(b []byte) (int, error) {
	return c.conn.Write(b)
}

// ReadPacket blocks for the next inbound datagram and returns a copy of its
// bytes. It's used by the Supervisor's SocketReader to multiplex the socket
// to registered callbacks; this package has no opinion on what the bytes
// mean, since decoding incoming RTP is outside the core's scope.
func (c *Connection) ReadPacket() ([]byte, error) {
	buf := make([]byte, MaxPacketSize)

	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}
