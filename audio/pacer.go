// Package audio implements the real-time audio playback pipeline: a
// wall-clock-paced producer that reads PCM, encodes it to Opus, and hands
// the result to a packet sender.
package audio

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Debug is the package-level debug logger, following the convention used
// throughout this module's other packages.
var Debug = func(v ...interface{}) {}

// Encoder abstracts the opaque Opus encoder the pacer drives. The pacer
// never speaks Opus itself; it only knows the frame geometry it needs to
// pace correctly.
type Encoder interface {
	// Encode turns exactly one frame of PCM into an Opus payload.
	Encode(pcm []byte) (opus []byte, err error)
	// FrameSize is the number of PCM bytes Encode expects per call.
	FrameSize() int
	// SamplesPerFrame is the number of audio samples represented by one
	// frame, used by the RTP layer to advance its timestamp.
	SamplesPerFrame() uint32
	// FrameDuration is the real-time duration of one frame (typically 20ms).
	FrameDuration() time.Duration
}

// Sender receives one encoded frame per call, in order.
type Sender interface {
	Send(opus []byte, samplesPerFrame uint32) error
}

// Source is an opaque byte source the pacer reads PCM frames from. Modeling
// it as a plain interface rather than a class hierarchy lets the pacer work
// against a file reader, a pipe from a subprocess, or a synthetic generator
// without the pacer caring which.
type Source interface {
	Read(p []byte) (n int, err error)
}

// state is the pacer's lifecycle.
type state uint32

const (
	statePaused state = iota
	stateRunning
	stateDone
)

// Pacer periodically reads exactly one frame from a Source, encodes it, and
// hands the result to a Sender at real-time pace. It runs as a dedicated
// goroutine rather than being driven by the caller's event loop, so that
// audio pacing is isolated from reactor latency elsewhere in the process.
type Pacer struct {
	source  Source
	encoder Encoder
	sender  Sender

	// connected is polled once per iteration; when false, the pacer
	// self-terminates as though the stream had ended.
	connected *atomic.Bool

	resumed atomic.Bool
	done    atomic.Bool

	start time.Time
	k     uint64

	resumeSignal chan struct{}
	resumeMu     sync.Mutex

	// StopHook, if set, runs before the base stop logic when Stop is called
	// (composition point for e.g. a subprocess-backed Source that needs to
	// be killed).
	StopHook func()

	finalize     func()
	finalizeOnce sync.Once
}

// NewPacer creates a Pacer. connected is a shared flag the owner flips to
// false to signal the underlying transport has dropped; finalize is invoked
// exactly once, when the pacer stops, with any panic from it swallowed.
func NewPacer(source Source, encoder Encoder, sender Sender, connected *atomic.Bool, finalize func()) *Pacer {
	if finalize == nil {
		finalize = func() {}
	}

	return &Pacer{
		source:       source,
		encoder:      encoder,
		sender:       sender,
		connected:    connected,
		resumeSignal: make(chan struct{}, 1),
		finalize:     finalize,
	}
}

// IsPlaying reports whether the pacer is actively producing frames.
func (p *Pacer) IsPlaying() bool {
	return p.resumed.Load() && !p.done.Load()
}

// IsDone reports whether the pacer has permanently stopped.
func (p *Pacer) IsDone() bool {
	return p.done.Load() || !p.connected.Load()
}

// Pause halts frame production. The running loop blocks until Resume.
func (p *Pacer) Pause() {
	p.resumed.Store(false)
}

// Resume (re)starts frame production, resetting the pacing clock so that
// frame 0 is due immediately.
func (p *Pacer) Resume() {
	p.resumeMu.Lock()
	defer p.resumeMu.Unlock()

	p.start = time.Now()
	p.k = 0
	p.resumed.Store(true)

	select {
	case p.resumeSignal <- struct{}{}:
	default:
	}
}

// Stop irreversibly halts the pacer and invokes the finalizer exactly once.
// Any panic raised by StopHook or the finalizer is discarded, matching the
// "finalizer exceptions are swallowed" contract.
func (p *Pacer) Stop() {
	if p.done.Swap(true) {
		return
	}

	// Wake a Run loop blocked while paused so it observes done and exits.
	select {
	case p.resumeSignal <- struct{}{}:
	default:
	}

	if p.StopHook != nil {
		safeCall(p.StopHook)
	}

	p.finalizeOnce.Do(func() {
		safeCall(p.finalize)
	})
}

func safeCall(f func()) {
	defer func() { recover() }()
	f()
}

// Run drives the pacer loop until Stop is called, the source is exhausted,
// or connected becomes false. It's meant to be called in its own goroutine.
func (p *Pacer) Run() {
	defer p.Stop()

	frameSize := p.encoder.FrameSize()
	frameLen := p.encoder.FrameDuration()
	samples := p.encoder.SamplesPerFrame()

	pcm := make([]byte, frameSize)

	for {
		if !p.resumed.Load() {
			if p.done.Load() {
				return
			}
			<-p.resumeSignal
			continue
		}

		if p.IsDone() {
			return
		}

		n, err := readFull(p.source, pcm)
		if err != nil || n < frameSize {
			// Stream exhausted (or errored); that's a clean end, not a
			// pacer failure.
			return
		}

		opus, err := p.encoder.Encode(pcm)
		if err != nil {
			Debug("audio: encode error:", err)
			return
		}

		if err := p.sender.Send(opus, samples); err != nil {
			Debug("audio: send error:", err)
			return
		}

		dueK := p.start.Add(time.Duration(p.k) * frameLen)
		p.k++

		now := time.Now()
		sleep := frameLen + dueK.Sub(now)
		if sleep < 0 {
			sleep = 0
		}

		time.Sleep(sleep)
	}
}

// readFull reads until pcm is full or the source errors/returns 0.
func readFull(src Source, pcm []byte) (int, error) {
	total := 0
	for total < len(pcm) {
		n, err := src.Read(pcm[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}
