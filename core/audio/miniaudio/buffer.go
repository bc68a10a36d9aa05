package miniaudio

import "sync"

// playbackBuffer queues tutor audio for the device callback. Audio of a
// newer response replaces whatever is still queued for an older one. Reads
// hand out whole frames only.
type playbackBuffer struct {
	mu         sync.Mutex
	pending    []byte
	responseID int64
	silence    byte
	frameSize  int
}

func (b *playbackBuffer) write(responseID int64, pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case responseID < b.responseID:
		return
	case responseID > b.responseID:
		b.responseID = responseID
		b.pending = b.pending[:0]
	}
	b.pending = append(b.pending, pcm...)
}

// read fills out with queued audio and pads the rest with silence.
func (b *playbackBuffer) read(out []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	available := len(b.pending)
	if b.frameSize > 1 {
		available -= available % b.frameSize
	}
	n := copy(out, b.pending[:available])
	b.pending = b.pending[n:]
	for i := n; i < len(out); i++ {
		out[i] = b.silence
	}
	return n
}

func (b *playbackBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

func (b *playbackBuffer) buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
