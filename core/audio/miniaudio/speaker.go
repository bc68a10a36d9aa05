// Package miniaudio plays tutor audio on the default output device.
package miniaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-tutor/core/audio"
)

type Speaker struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	info   audio.EncodingInfo
	buffer playbackBuffer
	mu     sync.Mutex
}

// NewSpeaker opens the default output device. Companded audio is decoded to
// 16-bit PCM before it is queued.
func NewSpeaker(info audio.EncodingInfo) (*Speaker, error) {
	output := info.Linear16()
	format, err := deviceFormat(output)
	if err != nil {
		return nil, err
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	s := &Speaker{
		audioContext: audioCtx,
		info:         info,
		buffer:       playbackBuffer{silence: output.SilenceValue(), frameSize: output.BytesPerFrame()},
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(info.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(max(output.Channels, 1))
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(info.SampleRate / 10) // ~100ms of audio
	config.Periods = 4

	if s.device, err = malgo.InitDevice(audioCtx.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) { s.buffer.read(pOutput) },
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := s.device.Start(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return s, nil
}

// Play queues audio of a response. It matches the realtime audio sink
// signature.
func (s *Speaker) Play(responseID int64, pcm []byte) {
	s.buffer.write(responseID, s.info.ToLinear16(pcm))
}

// Drain waits until queued audio has been handed to the device or ctx is
// done.
func (s *Speaker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for s.buffer.buffered() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Speaker) Clear() {
	s.buffer.clear()
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.audioContext != nil {
		if err := s.audioContext.Uninit(); err != nil {
			return fmt.Errorf("failed to release audio context: %w", err)
		}
		s.audioContext.Free()
		s.audioContext = nil
	}
	return nil
}

func deviceFormat(info audio.EncodingInfo) (malgo.FormatType, error) {
	switch info.Format {
	case audio.EncodingLinear16:
		return malgo.FormatS16, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("unknown playback format %q", info.Format.Name())
	}
}
