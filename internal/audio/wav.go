package audio

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
)

// DecodeWAV reads a PCM WAV stream, downmixes it to mono and normalizes
// samples to [-1, 1]. The returned rate is the file's own sample rate.
func DecodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, apperrors.New(apperrors.AudioDecodeFailed, "not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.AudioDecodeFailed, "failed to read PCM data")
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, apperrors.New(apperrors.AudioEmptyInput, "WAV file contains no samples")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = buf.SourceBitDepth
	}
	if depth <= 0 || depth > 32 {
		return nil, 0, apperrors.Newf(apperrors.AudioDecodeFailed, "unsupported bit depth %d", depth)
	}
	scale := float32(math.Exp2(float64(depth - 1)))

	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		mono[i] = sum / float32(channels)
	}
	return mono, buf.Format.SampleRate, nil
}

// WriteWAV encodes mono samples as a 16-bit PCM WAV at the given rate.
func WriteWAV(w io.WriteSeeker, samples []float32, rate int) error {
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * math.MaxInt16)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return enc.Close()
}
