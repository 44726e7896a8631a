package vad

// Chunk is a contiguous run of 16 kHz samples ready for transcription.
// T0 is the stream offset, in seconds, of the first sample.
type Chunk struct {
	PCM []float32
	T0  float64
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 { return float64(len(c.PCM)) / sampleRate }

// Config overrides segmenter thresholds; zero fields take the defaults.
type Config struct {
	EnergyThreshold float64
	MinChunkSec     float64
	MaxChunkSec     float64
	HangoverSec     float64
}

func (c Config) withDefaults() Config {
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = EnergyThreshold
	}
	if c.MinChunkSec <= 0 {
		c.MinChunkSec = MinChunkSec
	}
	if c.MaxChunkSec <= 0 {
		c.MaxChunkSec = MaxChunkSec
	}
	if c.HangoverSec <= 0 {
		c.HangoverSec = HangoverSec
	}
	return c
}

// Segmenter buffers one stream and emits chunks on speech boundaries.
// It is not safe for concurrent use; one goroutine feeds it.
type Segmenter struct {
	cfg     Config
	emit    func(Chunk)
	maxLen  int
	minLen  int
	pending []float32 // partial frame carried between pushes
	buf     []float32
	start   int64 // stream index of buf[0]
	pos     int64 // samples classified so far
	// lastVoice is the stream time of the last voiced frame in buf, or
	// negative while no voiced frame has been seen since the last flush.
	lastVoice float64
}

// New creates a segmenter that hands each chunk to emit. emit must not
// block; it takes ownership of the chunk's samples.
func New(cfg Config, emit func(Chunk)) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg:       cfg,
		emit:      emit,
		maxLen:    int(cfg.MaxChunkSec * sampleRate),
		minLen:    int(cfg.MinChunkSec * sampleRate),
		lastVoice: -1,
	}
}

// Push feeds samples of any length. Whole frames are classified
// immediately; a trailing partial frame waits for the next push.
func (s *Segmenter) Push(samples []float32) {
	if len(s.pending) > 0 {
		need := FrameSamples - len(s.pending)
		if len(samples) < need {
			s.pending = append(s.pending, samples...)
			return
		}
		s.pending = append(s.pending, samples[:need]...)
		samples = samples[need:]
		s.process(s.pending)
		s.pending = s.pending[:0]
	}
	for len(samples) >= FrameSamples {
		s.process(samples[:FrameSamples])
		samples = samples[FrameSamples:]
	}
	s.pending = append(s.pending, samples...)
}

func (s *Segmenter) process(frame []float32) {
	var sum float64
	for _, v := range frame {
		sum += float64(v) * float64(v)
	}
	energy := sum / float64(len(frame))

	s.pos += int64(len(frame))
	now := float64(s.pos) / sampleRate
	if energy > s.cfg.EnergyThreshold {
		s.lastVoice = now
	}
	s.buf = append(s.buf, frame...)

	tooLong := len(s.buf) >= s.maxLen
	endOfSpeech := s.lastVoice >= 0 && now-s.lastVoice > s.cfg.HangoverSec && len(s.buf) > s.minLen
	if tooLong || endOfSpeech {
		s.flush()
	}
}

func (s *Segmenter) flush() {
	c := Chunk{PCM: s.buf, T0: float64(s.start) / sampleRate}
	s.start += int64(len(s.buf))
	s.buf = make([]float32, 0, len(c.PCM))
	s.lastVoice = -1
	s.emit(c)
}

// Flush drains the trailing partial buffer on stream end. It reports
// false, discarding the buffer, when no voiced frame arrived since the
// last chunk.
func (s *Segmenter) Flush() (Chunk, bool) {
	if len(s.pending) > 0 {
		s.buf = append(s.buf, s.pending...)
		s.pos += int64(len(s.pending))
		s.pending = s.pending[:0]
	}
	voiced := s.lastVoice >= 0 && len(s.buf) > 0
	c := Chunk{PCM: s.buf, T0: float64(s.start) / sampleRate}
	s.start += int64(len(s.buf))
	s.buf = nil
	s.lastVoice = -1
	if !voiced {
		return Chunk{}, false
	}
	return c, true
}

// Reset discards all buffered audio and restarts the stream clock.
func (s *Segmenter) Reset() {
	s.pending = nil
	s.buf = nil
	s.start = 0
	s.pos = 0
	s.lastVoice = -1
}

// Buffered returns the number of samples waiting in the current chunk.
func (s *Segmenter) Buffered() int { return len(s.buf) + len(s.pending) }
