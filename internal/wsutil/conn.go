package wsutil

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// CopyBufferSize is the initial size of the read buffer.
var CopyBufferSize = 4096

// MaxCapUntilReset determines the maximum read-buffer capacity before it's
// reallocated, to avoid holding onto one oversized buffer forever.
var MaxCapUntilReset = CopyBufferSize * 4

// CloseDeadline controls the deadline to wait for sending the close frame.
var CloseDeadline = time.Second

// Conn is the default Websocket connection, using gorilla/websocket and
// transparently inflating zlib-compressed binary frames.
type Conn struct {
	Dialer websocket.Dialer
	Header http.Header
	Conn   *websocket.Conn
	events chan Event
}

var _ Connection = (*Conn)(nil)

// NewConn creates a new default websocket connection with a default dialer.
func NewConn() *Conn {
	return NewConnWithDialer(websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  WSTimeout,
		ReadBufferSize:    CopyBufferSize,
		WriteBufferSize:   CopyBufferSize,
		EnableCompression: true,
	})
}

// NewConnWithDialer creates a new default websocket connection with a custom
// dialer.
func NewConnWithDialer(dialer websocket.Dialer) *Conn {
	return &Conn{
		Dialer: dialer,
		Header: http.Header{
			"Accept-Encoding": {"zlib"},
		},
	}
}

func (c *Conn) Dial(ctx context.Context, addr string) (err error) {
	c.Conn, _, err = c.Dialer.DialContext(ctx, addr, c.Header)
	if err != nil {
		return errors.Wrap(err, "failed to dial WS")
	}

	c.Conn.SetWriteDeadline(resetDeadline)

	c.events = make(chan Event, WSBuffer)
	go startReadLoop(c.Conn, c.events)

	return nil
}

func (c *Conn) Listen() <-chan Event {
	return c.events
}

var resetDeadline = time.Time{}

func (c *Conn) Send(ctx context.Context, b []byte) error {
	if d, ok := ctx.Deadline(); ok {
		c.Conn.SetWriteDeadline(d)
		defer c.Conn.SetWriteDeadline(resetDeadline)
	}

	return c.Conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) Close() error {
	WSDebug("Conn: closing websocket connection.")

	c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := c.Conn.Close()
	c.Conn.SetWriteDeadline(resetDeadline)

	// Flush all pending events before returning; the read loop closes the
	// channel once it observes the connection is gone.
	for range c.events {
	}

	return err
}

func (c *Conn) CloseGracefully() error {
	WSDebug("Conn: sending close frame.")

	c.Conn.SetWriteDeadline(time.Now().Add(CloseDeadline))
	err := c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		WSError(err)
	}

	return c.Close()
}

// loopState is a disposable, thread-unsafe container for the read loop's
// private resources.
type loopState struct {
	conn *websocket.Conn
	zlib io.ReadCloser
	buf  bytes.Buffer
}

func startReadLoop(conn *websocket.Conn, eventCh chan<- Event) {
	defer close(eventCh)

	state := loopState{conn: conn}
	state.buf.Grow(CopyBufferSize)

	for {
		b, err := state.handle()
		if err != nil {
			WSDebug("Conn: read error:", err)

			if errors.Is(err, io.EOF) {
				return
			}

			if strings.HasSuffix(err.Error(), "use of closed network connection") {
				return
			}

			closeCode := -1
			closeErr := err

			var wsCloseErr *websocket.CloseError
			if errors.As(err, &wsCloseErr) {
				closeCode = wsCloseErr.Code
				closeErr = fmt.Errorf("%d %s", wsCloseErr.Code, wsCloseErr.Text)
			}

			eventCh <- Event{Error: errors.Wrap(closeErr, "WS error"), CloseCode: closeCode}
			return
		}

		if len(b) == 0 {
			continue
		}

		eventCh <- Event{Data: b}
	}
}

func (state *loopState) handle() ([]byte, error) {
	t, r, err := state.conn.NextReader()
	if err != nil {
		return nil, err
	}

	if t == websocket.BinaryMessage {
		if state.zlib == nil {
			z, err := zlib.NewReader(r)
			if err != nil {
				return nil, errors.Wrap(err, "failed to create a zlib reader")
			}
			state.zlib = z
		} else {
			if err := state.zlib.(zlib.Resetter).Reset(r, nil); err != nil {
				return nil, errors.Wrap(err, "failed to reset zlib reader")
			}
		}

		defer state.zlib.Close()
		r = state.zlib
	}

	return state.readAll(r)
}

func (state *loopState) readAll(r io.Reader) ([]byte, error) {
	defer state.buf.Reset()

	if _, err := state.buf.ReadFrom(r); err != nil {
		return nil, err
	}

	cpy := make([]byte, state.buf.Len())
	copy(cpy, state.buf.Bytes())

	if state.buf.Cap() > MaxCapUntilReset {
		state.buf = bytes.Buffer{}
		state.buf.Grow(CopyBufferSize)
	}

	return cpy, nil
}
