// Package audio holds the PCM plumbing shared by the voice gateway and the
// speech providers: frame types, format conversion, resampling, and the Opus
// codec used on the browser leg.
package audio

import "time"

// Frame is a single chunk of PCM audio flowing through the pipeline.
// Frames are captured from the candidate's microphone stream, decoded from
// Opus, downmixed and resampled for STT, and played back as coach speech.
type Frame struct {
	// Data is little-endian int16 PCM. Sample rate and channel count are
	// carried alongside because frames from different legs differ.
	Data []byte

	// SampleRate in Hz (48000 on the browser leg, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono (STT input), 2 for stereo playback.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
