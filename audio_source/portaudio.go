package audio_source

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	log "github.com/sirupsen/logrus"
)

// DefaultDevice selects the host's default input device.
const DefaultDevice = -1

type portAudioImpl struct {
	deviceIndex int
	sampleRate  int
	in          []int16

	// mu keeps Close from freeing the stream under a blocking Read.
	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
	closed  bool
}

type PortAudioConfig struct {
	// DeviceIndex is a position in the list returned by ListDevices, or
	// DefaultDevice.
	DeviceIndex int
	SampleRate  int
	BlockSize   int
}

func NewPortAudio(cfg *PortAudioConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}

	return &portAudioImpl{
		deviceIndex: cfg.DeviceIndex,
		sampleRate:  cfg.SampleRate,
		in:          make([]int16, cfg.BlockSize),
	}, nil
}

func (p *portAudioImpl) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if p.running {
		return nil
	}

	err := portaudio.Initialize()
	if err != nil {
		return err
	}

	stream, err := p.open()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	err = stream.Start()
	if err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}

	p.stream = stream
	p.running = true

	log.Infof("audio: capturing %d-sample blocks at %d Hz", len(p.in), p.sampleRate)

	return nil
}

func (p *portAudioImpl) open() (*portaudio.Stream, error) {
	if p.deviceIndex == DefaultDevice {
		return portaudio.OpenDefaultStream(1, 0, float64(p.sampleRate), len(p.in), p.in)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	if p.deviceIndex < 0 || p.deviceIndex >= len(devices) {
		return nil, fmt.Errorf("device %d not found, %d devices available", p.deviceIndex, len(devices))
	}

	device := devices[p.deviceIndex]
	if device.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", p.deviceIndex, device.Name)
	}

	log.Infof("audio: using device %d: %s", p.deviceIndex, device.Name)

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(p.sampleRate)
	params.FramesPerBuffer = len(p.in)

	return portaudio.OpenStream(params, p.in)
}

func (p *portAudioImpl) Read() ([]int16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if !p.running {
		return nil, fmt.Errorf("audio stream is not started")
	}

	err := p.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, fmt.Errorf("reading audio stream: %w", err)
	}

	block := make([]int16, len(p.in))
	copy(block, p.in)

	if err != nil {
		return block, ErrOverflow
	}

	return block, nil
}

func (p *portAudioImpl) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if !p.running {
		return nil
	}

	p.running = false

	return errors.Join(p.stream.Stop(), p.stream.Close(), portaudio.Terminate())
}

func (p *portAudioImpl) SampleRate() int {
	return p.sampleRate
}

// Device describes one capture-capable device.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// ListDevices returns every device with at least one input channel. Index
// is the value to pass as PortAudioConfig.DeviceIndex.
func ListDevices() ([]Device, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, err
	}

	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var out []Device

	for i, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}

		var host string
		if d.HostApi != nil {
			host = d.HostApi.Name
		}

		out = append(out, Device{
			Index:             i,
			Name:              d.Name,
			HostAPI:           host,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d.Name == defaultName,
		})
	}

	return out, nil
}
