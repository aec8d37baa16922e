package udp

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// ErrManagerClosed is returned when a Manager with no connection and no
// pending pause is written to or read from (as after Close), and by Dial
// when Close is called before the dial completes.
var ErrManagerClosed = errors.New("udp: manager is closed")

// ErrDialWhileUnpaused is returned if Dial is called without pausing first.
var ErrDialWhileUnpaused = errors.New("udp: dial called while manager is not paused")

type pauseSignals struct {
	ctx    context.Context
	cancel func()
	done   chan struct{}
}

func newPauseSignals() *pauseSignals {
	ctx, cancel := context.WithCancel(context.Background())
	return &pauseSignals{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Manager owns a reconnectable Connection. The VoiceConnectionSupervisor
// pauses the Manager before tearing down a signaling session and dials a
// fresh Connection once a new SSRC/endpoint is known, so that writers
// blocked on the Manager resume transparently against the new socket instead
// of erroring out during a reconnect.
type Manager struct {
	mu     sync.Mutex
	closed chan struct{}
	dialer *net.Dialer

	paused *pauseSignals
	conn   *Connection
}

// NewManager creates a Manager using the package default Dialer.
func NewManager() *Manager {
	return NewManagerWithDialer(&Dialer)
}

// NewManagerWithDialer creates a Manager using a custom dialer.
func NewManagerWithDialer(d *net.Dialer) *Manager {
	return &Manager{
		closed: make(chan struct{}),
		dialer: d,
	}
}

// Close tears down any current connection and closes the Manager: blocked
// and later readers/writers get ErrManagerClosed until a later Pause and
// Dial install a new connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.closed:
	default:
		close(m.closed)
	}

	if m.paused != nil {
		m.paused.cancel()
		close(m.paused.done)
		m.paused = nil
	}

	var err error
	if m.conn != nil {
		err = m.conn.Close()
		m.conn = nil
	}

	return err
}

// Pause closes the current connection (if any) and blocks future
// readers/writers until Dial and Unpause.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}

	if m.paused == nil {
		m.paused = newPauseSignals()
	}
}

// Unpause releases anything blocked since the last Pause, using whatever
// connection (possibly nil) is currently installed.
func (m *Manager) Unpause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused != nil {
		m.paused.cancel()
		close(m.paused.done)
		m.paused = nil
	}
}

// PauseAndDial is a convenience that pauses, dials a fresh Connection, and
// leaves the Manager installed-but-still-paused; the caller unpauses once
// it's also ready to resume (e.g. once the secret key is set).
func (m *Manager) PauseAndDial(ctx context.Context, addr string, ssrc uint32) (*Connection, error) {
	m.Pause()
	return m.Dial(ctx, addr, ssrc)
}

// Dial dials a new Connection while paused and installs it. Dial must be
// called after Pause and before Unpause.
func (m *Manager) Dial(ctx context.Context, addr string, ssrc uint32) (*Connection, error) {
	m.mu.Lock()
	if m.paused == nil {
		m.mu.Unlock()
		return nil, ErrDialWhileUnpaused
	}

	m.closed = make(chan struct{})
	dialer := m.dialer
	signals := m.paused
	m.mu.Unlock()

	conn, err := DialConnectionCustom(signals.ctx, dialer, addr, ssrc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.closed:
		conn.Close()
		return nil, ErrManagerClosed
	default:
	}

	m.conn = conn
	return conn, nil
}

// Write writes to the current connection, blocking while the Manager is
// paused and retrying once it's unpaused.
func (m *Manager) Write(b []byte) (int, error) {
	var n int
	err := m.acquire(func(conn *Connection) (err error) {
		n, err = conn.Write(b)
		return
	})
	return n, err
}

// ReadPacket reads from the current connection, blocking while paused.
func (m *Manager) ReadPacket() ([]byte, error) {
	var p []byte
	err := m.acquire(func(conn *Connection) (err error) {
		p, err = conn.ReadPacket()
		return
	})
	return p, err
}

func (m *Manager) acquire(f func(conn *Connection) error) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	for {
		if conn != nil {
			err := f(conn)
			if err == nil {
				return nil
			}
			if !errors.Is(err, net.ErrClosed) {
				return err
			}
		}

		m.mu.Lock()
		if conn == nil && m.conn != nil {
			conn = m.conn
			m.mu.Unlock()
			continue
		}

		paused := m.paused
		closing := m.closed
		m.mu.Unlock()

		if paused == nil {
			return ErrManagerClosed
		}

		select {
		case <-closing:
			return ErrManagerClosed
		case <-paused.done:
			m.mu.Lock()
			conn = m.conn
			m.mu.Unlock()
		}
	}
}
