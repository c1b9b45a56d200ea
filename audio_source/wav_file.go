package audio_source

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type wavFileImpl struct {
	fileSys   afero.Fs
	path      string
	blockSize int
	realtime  bool

	mu       sync.Mutex
	closed   bool
	file     afero.File
	decoder  *wav.Decoder
	buf      *audio.IntBuffer
	channels int
	shift    int
	rate     int
	next     time.Time
}

type WavFileConfig struct {
	FileSys   afero.Fs
	Path      string
	BlockSize int
	// Realtime paces Read to one block per block duration, as a live
	// device would.
	Realtime bool
}

// NewWavFile replays a PCM WAV file block by block. Multi-channel files are
// reduced to their first channel; the last block is zero padded.
func NewWavFile(cfg *WavFileConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("path is empty")
	}

	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}

	return &wavFileImpl{
		fileSys:   cfg.FileSys,
		path:      cfg.Path,
		blockSize: cfg.BlockSize,
		realtime:  cfg.Realtime,
	}, nil
}

func (w *wavFileImpl) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	if w.decoder != nil {
		return nil
	}

	f, err := w.fileSys.Open(w.path)
	if err != nil {
		return err
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%s is not a valid wav file", w.path)
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		f.Close()
		return fmt.Errorf("%s: unsupported bit depth %d", w.path, dec.BitDepth)
	}

	w.file = f
	w.decoder = dec
	w.channels = int(dec.NumChans)
	w.shift = int(dec.BitDepth) - 16
	w.rate = int(dec.SampleRate)
	w.buf = &audio.IntBuffer{
		Format: dec.Format(),
		Data:   make([]int, w.blockSize*w.channels),
	}
	w.next = time.Now()

	log.Infof("audio: replaying %s (%d Hz, %d channels, %d bit)", w.path, w.rate, w.channels, dec.BitDepth)

	return nil
}

func (w *wavFileImpl) Read() ([]int16, error) {
	block, due, err := w.decode()
	if err != nil {
		return nil, err
	}

	if w.realtime {
		time.Sleep(time.Until(due))
	}

	return block, nil
}

// decode reads the next block and the time it is due under realtime pacing.
func (w *wavFileImpl) decode() ([]int16, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, time.Time{}, ErrClosed
	}

	if w.decoder == nil {
		return nil, time.Time{}, fmt.Errorf("wav replay is not started")
	}

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding %s: %w", w.path, err)
	}

	frames := n / w.channels
	if frames == 0 {
		return nil, time.Time{}, ErrEndOfStream
	}

	block := make([]int16, w.blockSize)
	for i := 0; i < frames; i++ {
		block[i] = w.toInt16(w.buf.Data[i*w.channels])
	}

	w.next = w.next.Add(time.Duration(w.blockSize) * time.Second / time.Duration(w.rate))

	return block, w.next, nil
}

func (w *wavFileImpl) toInt16(v int) int16 {
	switch {
	case w.shift == -8:
		// 8-bit PCM is unsigned
		return int16((v - 128) << 8)
	case w.shift > 0:
		return int16(v >> w.shift)
	}

	return int16(v)
}

func (w *wavFileImpl) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true

	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	w.decoder = nil

	return err
}

func (w *wavFileImpl) SampleRate() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.rate
}
