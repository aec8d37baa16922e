package audio

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
)

type fakeEncoder struct{}

func (fakeEncoder) Encode(pcm []byte) ([]byte, error)  { return append([]byte(nil), pcm...), nil }
func (fakeEncoder) FrameSize() int                     { return 4 }
func (fakeEncoder) SamplesPerFrame() uint32            { return 960 }
func (fakeEncoder) FrameDuration() time.Duration       { return time.Millisecond }

type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSender) Send(opus []byte, samplesPerFrame uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), opus...))
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestPacerProducesAllFrames(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 5)
	src := bytes.NewReader(data)

	sender := &recordingSender{}
	connected := atomic.NewBool(true)

	var finalized int
	p := NewPacer(src, fakeEncoder{}, sender, connected, func() { finalized++ })
	p.Resume()

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pacer did not finish in time")
	}

	if sender.count() != 5 {
		t.Fatalf("got %d frames, want 5", sender.count())
	}
	if finalized != 1 {
		t.Fatalf("finalized called %d times, want 1", finalized)
	}
	if !p.IsDone() {
		t.Fatal("pacer should report done")
	}
}

func TestPacerStopIsIdempotent(t *testing.T) {
	sender := &recordingSender{}
	connected := atomic.NewBool(true)

	var finalized int
	p := NewPacer(eofSource{}, fakeEncoder{}, sender, connected, func() { finalized++ })

	p.Stop()
	p.Stop()

	if finalized != 1 {
		t.Fatalf("finalized called %d times, want 1", finalized)
	}
}

type eofSource struct{}

func (eofSource) Read(p []byte) (int, error) { return 0, io.EOF }
