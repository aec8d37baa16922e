package voice

import (
	"fmt"
	"sync"
)

// PacketCallback receives one raw UDP datagram from the voice data socket.
type PacketCallback func(packet []byte)

// SocketReader multiplexes a single UDP socket to any number of registered
// callbacks. It idles (stops calling its read function) whenever no
// callback is registered, and auto-resumes the instant one is added, so a
// Supervisor with no active audio consumer doesn't spin reading packets
// nobody wants.
//
// It is not the same pause as udp.Manager's: the Manager pauses the socket
// itself across a reconnect, while SocketReader pauses its own read loop
// based on callback demand. The two compose: SocketReader reads through
// whatever Manager.ReadPacket gives it, blocking transparently while the
// Manager is paused.
type SocketReader struct {
	read     func() ([]byte, error)
	errorLog func(error)

	mu        sync.Mutex
	callbacks map[int]PacketCallback
	nextID    int

	wake chan struct{}
	end  chan struct{}
	stop sync.Once
}

// NewSocketReader creates a SocketReader that pulls packets from read. Run
// must be called (in its own goroutine) to start multiplexing.
func NewSocketReader(read func() ([]byte, error), errorLog func(error)) *SocketReader {
	if errorLog == nil {
		errorLog = func(error) {}
	}

	return &SocketReader{
		read:      read,
		errorLog:  errorLog,
		callbacks: make(map[int]PacketCallback),
		wake:      make(chan struct{}, 1),
		end:       make(chan struct{}),
	}
}

// Run drives the read loop until Stop is called. It returns when stopped.
func (r *SocketReader) Run() {
	for {
		r.mu.Lock()
		idle := len(r.callbacks) == 0
		r.mu.Unlock()

		if idle {
			select {
			case <-r.end:
				return
			case <-r.wake:
				continue
			}
		}

		select {
		case <-r.end:
			return
		default:
		}

		b, err := r.read()
		if err != nil {
			select {
			case <-r.end:
				return
			default:
			}
			r.errorLog(err)
			continue
		}

		r.dispatch(b)
	}
}

func (r *SocketReader) dispatch(b []byte) {
	r.mu.Lock()
	cbs := make([]PacketCallback, 0, len(r.callbacks))
	for _, cb := range r.callbacks {
		cbs = append(cbs, cb)
	}
	r.mu.Unlock()

	for _, cb := range cbs {
		r.call(cb, b)
	}
}

// call invokes cb, logging and swallowing a panic instead of letting it
// bring down the reader, matching the "exceptions from callbacks do not
// stop the reader" requirement.
func (r *SocketReader) call(cb PacketCallback, b []byte) {
	defer func() {
		if v := recover(); v != nil {
			r.errorLog(fmt.Errorf("socketreader: callback panicked: %v", v))
		}
	}()
	cb(b)
}

// Register adds a callback and returns an ID for Unregister. Registering
// the first callback wakes an idling reader.
func (r *SocketReader) Register(cb PacketCallback) int {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	wasIdle := len(r.callbacks) == 0
	r.callbacks[id] = cb
	r.mu.Unlock()

	if wasIdle {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}

	return id
}

// Unregister removes a callback by its Register ID. Removing the last
// callback idle-pauses the reader.
func (r *SocketReader) Unregister(id int) {
	r.mu.Lock()
	delete(r.callbacks, id)
	r.mu.Unlock()
}

// Stop permanently ends the reader. It is safe to call more than once.
func (r *SocketReader) Stop() {
	r.stop.Do(func() { close(r.end) })
}
