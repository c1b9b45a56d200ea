package audio_source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

// recorderImpl tees every block read from its source into a WAV file.
type recorderImpl struct {
	source  Interface
	fileSys afero.Fs
	dir     string

	mu     sync.Mutex
	path   string
	writer *wave.Writer
}

type RecorderConfig struct {
	Source  Interface
	FileSys afero.Fs
	Dir     string
}

func NewRecorder(cfg *RecorderConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("source is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	return &recorderImpl{
		source:  cfg.Source,
		fileSys: cfg.FileSys,
		dir:     cfg.Dir,
	}, nil
}

func (r *recorderImpl) Start() error {
	err := r.source.Start()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer != nil {
		return nil
	}

	if r.dir != "" {
		err = r.fileSys.MkdirAll(r.dir, 0o755)
		if err != nil {
			return err
		}
	}

	r.path = filepath.Join(r.dir, "session"+strconv.Itoa(int(time.Now().Unix()))+".wav")

	waveFile, err := r.fileSys.Create(r.path)
	if err != nil {
		return err
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    r.source.SampleRate(),
		BitsPerSample: 16,
	}

	r.writer, err = wave.NewWriter(param)
	if err != nil {
		waveFile.Close()
		return err
	}

	log.Infof("audio: recording to %s", r.path)

	return nil
}

func (r *recorderImpl) Read() ([]int16, error) {
	block, err := r.source.Read()
	if block == nil || (err != nil && !errors.Is(err, ErrOverflow)) {
		return block, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer != nil {
		if _, writeErr := r.writer.WriteSample16(block); writeErr != nil {
			log.Warnf("audio: recording to %s failed, recording stopped: %v", r.path, writeErr)
			r.writer.Close()
			r.writer = nil
		}
	}

	return block, err
}

func (r *recorderImpl) Close() error {
	var errs []error

	r.mu.Lock()
	if r.writer != nil {
		errs = append(errs, r.writer.Close())
		r.writer = nil
	}
	r.mu.Unlock()

	errs = append(errs, r.source.Close())

	return errors.Join(errs...)
}

func (r *recorderImpl) SampleRate() int {
	return r.source.SampleRate()
}

// Path returns the file being written, empty before Start.
func (r *recorderImpl) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.path
}
