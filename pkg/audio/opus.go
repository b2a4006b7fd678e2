package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser microphone capture arrives as 48 kHz Opus at 20 ms frame size.
const (
	OpusSampleRate  = 48000
	opusFrameSizeMs = 20
	// OpusFrameSize is the number of samples per channel per 20 ms frame.
	OpusFrameSize = OpusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusDecoder decodes a single Opus stream to little-endian int16 PCM.
// Decoder state carries across packets, so use one decoder per stream and do
// not share it between goroutines.
type OpusDecoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewOpusDecoder creates a decoder for a 48 kHz Opus stream with the given
// channel count (1 for browser microphone capture, 2 for stereo).
func NewOpusDecoder(channels int) (*OpusDecoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: opus decoder: unsupported channel count %d", channels)
	}
	dec, err := gopus.NewDecoder(OpusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, channels: channels}, nil
}

// Decode decodes one Opus packet into a PCM Frame at 48 kHz.
func (d *OpusDecoder) Decode(packet []byte) (Frame, error) {
	pcm, err := d.dec.Decode(packet, OpusFrameSize, false)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Frame{
		Data:       Int16sToBytes(pcm),
		SampleRate: OpusSampleRate,
		Channels:   d.channels,
	}, nil
}

// OpusEncoder encodes little-endian int16 PCM into Opus packets.
// Not safe for concurrent use.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates an encoder for 48 kHz audio with the given channel
// count, tuned for voice-grade output.
func NewOpusEncoder(channels int) (*OpusEncoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: opus encoder: unsupported channel count %d", channels)
	}
	enc, err := gopus.NewEncoder(OpusSampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes one 20 ms PCM frame (as little-endian bytes) into an Opus
// packet.
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm := BytesToInt16s(pcmBytes)
	packet, err := e.enc.Encode(pcm, OpusFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return packet, nil
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
