package audio

import "testing"

func TestBytesPerFrame(t *testing.T) {
	tests := []struct {
		info     EncodingInfo
		expected int
	}{
		{info: EncodingInfo{SampleRate: 16000, Format: EncodingLinear16, Channels: 1}, expected: 2},
		{info: EncodingInfo{SampleRate: 16000, Format: EncodingLinear16, Channels: 2}, expected: 4},
		{info: EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}, expected: 1},
	}

	for _, tt := range tests {
		if got := tt.info.BytesPerFrame(); got != tt.expected {
			t.Fatalf("expected %d bytes per frame for %+v, got %d", tt.expected, tt.info, got)
		}
	}
}

func TestSilenceValue(t *testing.T) {
	if got := (EncodingInfo{Format: EncodingMulaw}).SilenceValue(); got != 0xFF {
		t.Fatalf("expected mulaw silence 0xFF, got %#x", got)
	}
	if got := (EncodingInfo{Format: EncodingALaw}).SilenceValue(); got != 0x55 {
		t.Fatalf("expected alaw silence 0x55, got %#x", got)
	}
}

func TestDefaultEncodingInfoIsUsable(t *testing.T) {
	if GetDefaultEncodingInfo().IsZero() {
		t.Fatalf("expected default encoding info to be set")
	}
}

func TestToLinear16(t *testing.T) {
	tests := []struct {
		name     string
		info     EncodingInfo
		data     []byte
		expected []int16
	}{
		{name: "mulaw silence", info: EncodingInfo{Format: EncodingMulaw}, data: []byte{0xFF, 0x7F}, expected: []int16{0, 0}},
		{name: "mulaw peaks", info: EncodingInfo{Format: EncodingMulaw}, data: []byte{0x80, 0x00}, expected: []int16{32124, -32124}},
		{name: "alaw near silence", info: EncodingInfo{Format: EncodingALaw}, data: []byte{0xD5, 0x55}, expected: []int16{8, -8}},
		{name: "alaw peaks", info: EncodingInfo{Format: EncodingALaw}, data: []byte{0xAA, 0x2A}, expected: []int16{32256, -32256}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.info.ToLinear16(tt.data)
			if len(out) != 2*len(tt.data) {
				t.Fatalf("expected %d bytes, got %d", 2*len(tt.data), len(out))
			}
			for i, expected := range tt.expected {
				got := int16(uint16(out[2*i]) | uint16(out[2*i+1])<<8)
				if got != expected {
					t.Fatalf("expected sample %d to be %d, got %d", i, expected, got)
				}
			}
		})
	}
}

func TestToLinear16KeepsLinearAudio(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	out := (EncodingInfo{Format: EncodingLinear16}).ToLinear16(data)
	if &out[0] != &data[0] {
		t.Fatalf("expected linear16 audio to be passed through")
	}
}
