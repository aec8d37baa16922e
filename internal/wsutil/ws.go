// Package wsutil provides abstractions around a Websocket connection shared
// by the Discord gateway and voice gateway: dialing, rate-limited sending,
// compressed frame decoding, and close-code extraction.
package wsutil

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	// WSTimeout is the timeout for connecting and writing to the Websocket,
	// before the caller cancels and fails.
	WSTimeout = time.Minute
	// WSBuffer is the size of the Event channel. This has to be at least 1
	// to make space for the first Event.
	WSBuffer = 10
	// WSError is the default error handler.
	WSError = func(err error) { log.Println("wsutil error:", err) }
	// WSDebug is used for extra debug logging. It behaves like log.Println.
	WSDebug = func(v ...interface{}) {}
)

// Event is a single decoded frame off the wire, or a terminal error.
type Event struct {
	Data []byte

	// Error is non-nil if Data is nil. If the error came from the websocket
	// closing, CloseCode is the close code sent by the peer, or -1 if none
	// was given.
	Error     error
	CloseCode int
}

// Connection abstracts around a generic Websocket driver. The driver handles
// compression by itself, including modifying the connection URL.
type Connection interface {
	// Dial dials the address. Context is used for timeout.
	Dial(context.Context, string) error

	// Listen returns an event channel that sends over events constantly. It
	// returns nil if there isn't an ongoing connection.
	Listen() <-chan Event

	// Send allows the caller to send bytes. It does not need to clean itself
	// up on errors, as the Websocket wrapper will do that.
	Send(context.Context, []byte) error

	// Close closes the websocket connection.
	Close() error
	// CloseGracefully sends a close frame and then closes the connection.
	CloseGracefully() error
}

// Websocket wraps a Connection with rate limiting for dialing and sending.
type Websocket struct {
	Conn Connection
	Addr string

	// Timeout for connecting and writing, defaults to WSTimeout.
	Timeout time.Duration

	SendLimiter *rate.Limiter
	DialLimiter *rate.Limiter
}

// New creates a new undialed Websocket using the default gorilla/websocket
// driver.
func New(addr string) *Websocket {
	return NewCustom(NewConn(), addr)
}

// NewCustom creates a new undialed Websocket around a custom Connection.
func NewCustom(conn Connection, addr string) *Websocket {
	return &Websocket{
		Conn: conn,
		Addr: addr,

		Timeout: WSTimeout,

		SendLimiter: NewSendLimiter(),
		DialLimiter: NewDialLimiter(),
	}
}

func (ws *Websocket) Dial(ctx context.Context) error {
	if ws.Timeout > 0 {
		tctx, cancel := context.WithTimeout(ctx, ws.Timeout)
		defer cancel()
		ctx = tctx
	}

	if err := ws.DialLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "failed to wait on dial limiter")
	}

	if err := ws.Conn.Dial(ctx, ws.Addr); err != nil {
		return errors.Wrap(err, "failed to dial")
	}

	// Reset the send limiter on every successful dial.
	ws.SendLimiter = NewSendLimiter()

	return nil
}

func (ws *Websocket) Listen() <-chan Event {
	return ws.Conn.Listen()
}

func (ws *Websocket) Send(ctx context.Context, b []byte) error {
	if err := ws.SendLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "send limiter failed")
	}

	return ws.Conn.Send(ctx, b)
}

func (ws *Websocket) Close() error {
	return ws.Conn.Close()
}

func (ws *Websocket) CloseGracefully() error {
	return ws.Conn.CloseGracefully()
}

// ErrWebsocketClosed marks an already-closed websocket. Close does not return
// it: closing a closed connection returns the underlying connection's own
// error.
var ErrWebsocketClosed = errors.New("websocket is closed")

// InjectValues merges additional query parameters into rawurl.
func InjectValues(rawurl string, values url.Values) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}

	q := u.Query()
	for k, v := range values {
		q[k] = append(q[k], v...)
	}

	u.RawQuery = q.Encode()
	return u.String()
}
