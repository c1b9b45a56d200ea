package audio_source

import "errors"

var (
	// ErrOverflow reports that samples were dropped before the block was
	// read. The returned block is still usable.
	ErrOverflow = errors.New("audio input overflowed")

	// ErrEndOfStream reports that a finite source has no more blocks.
	ErrEndOfStream = errors.New("audio stream ended")

	// ErrClosed reports a Read after Close.
	ErrClosed = errors.New("audio source is closed")
)

// Interface supplies fixed-length mono blocks of 16-bit samples.
type Interface interface {
	Start() error
	// Read blocks until the next block is available. Every call returns a
	// fresh slice the caller may keep.
	Read() ([]int16, error)
	// Close may be called while a Read is in flight; later reads return
	// ErrClosed.
	Close() error
	SampleRate() int
}
