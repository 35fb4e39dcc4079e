package audio

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Chime plays the notification sound. The file is decoded on first use and
// kept in memory until the path changes.
type Chime struct {
	mu     sync.Mutex
	logger *slog.Logger

	path   string
	volume float64

	buffer      *beep.Buffer
	initialized bool
	sampleRate  beep.SampleRate
}

// NewChime creates a chime for the sound at path with volume 0-100.
// An empty path makes Play a no-op.
func NewChime(path string, volume int, logger *slog.Logger) *Chime {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chime{logger: logger}
	c.Configure(path, volume)
	return c
}

// Configure changes the sound file and volume.
func (c *Chime) Configure(path string, volume int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path = expandPath(path)
	if path != c.path {
		c.buffer = nil
	}
	c.path = path
	c.volume = math.Min(math.Max(float64(volume)/100, 0), 1)
}

// Play starts playback and returns without waiting for it to finish.
func (c *Chime) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" || c.volume == 0 {
		return nil
	}
	if c.buffer == nil {
		buf, err := Decode(c.path)
		if err != nil {
			return err
		}
		c.buffer = buf
	}
	if err := c.ensureInitialized(c.buffer.Format().SampleRate); err != nil {
		return err
	}

	var streamer beep.Streamer = c.buffer.Streamer(0, c.buffer.Len())
	if rate := c.buffer.Format().SampleRate; rate != c.sampleRate {
		streamer = beep.Resample(4, rate, c.sampleRate, streamer)
	}
	if c.volume < 1 {
		streamer = &effects.Volume{
			Streamer: streamer,
			Base:     2,
			Volume:   volumeExponent(c.volume),
		}
	}
	speaker.Play(streamer)
	c.logger.Debug("chime played", "path", c.path)
	return nil
}

// ensureInitialized initializes the speaker once. Callers hold mu.
func (c *Chime) ensureInitialized(sampleRate beep.SampleRate) error {
	if c.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	c.sampleRate = sampleRate
	c.initialized = true
	c.logger.Debug("speaker initialized", "sample_rate", sampleRate)
	return nil
}

// Close stops playback and releases the speaker.
func (c *Chime) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		speaker.Close()
		c.initialized = false
	}
	c.buffer = nil
}

// Decode reads a WAV, OGG or MP3 file into memory.
func Decode(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sound file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode sound: %w", err)
	}
	defer func() { _ = streamer.Close() }()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	return buffer, nil
}

// volumeExponent converts a linear volume (0-1) to the exponent used by
// effects.Volume with base 2.
func volumeExponent(volume float64) float64 {
	if volume <= 0 {
		return -100
	}
	return math.Log2(volume)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
