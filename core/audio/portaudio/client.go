package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-referrals/core/audio"
)

// Client is a blocking duplex PortAudio stream used as both microphone and
// speaker.
type Client struct {
	bufferSize    int
	stream        *portaudio.Stream
	streamMu      sync.Mutex
	leftoverAudio []byte
	audioMu       sync.Mutex

	in  []int16
	out []int16

	captureMu     sync.Mutex
	onAudio       func(audio []byte)
	cancelCapture context.CancelFunc
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// StartCapture reads the microphone in the background until StopCapture or
// ctx is done. Calling it again only replaces the listener.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	c.onAudio = onAudio
	if c.cancelCapture != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancelCapture = cancel
	go c.capture(ctx)
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.cancelCapture != nil {
		c.cancelCapture()
		c.cancelCapture = nil
	}
	c.onAudio = nil
	return nil
}

func (c *Client) capture(ctx context.Context) {
	for ctx.Err() == nil {
		c.streamMu.Lock()
		err := c.stream.Read()
		audioBuffer := bytes.Buffer{}
		if err == nil {
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
		}
		c.streamMu.Unlock()

		if err != nil {
			logger.Warn("failed to read from portaudio stream", "error", err)
			continue
		}

		c.captureMu.Lock()
		onAudio := c.onAudio
		c.captureMu.Unlock()
		if onAudio != nil {
			onAudio(audioBuffer.Bytes())
		}
	}
}

func (c *Client) Close() {
	_ = c.StopCapture()
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	_ = c.stream.Stop()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

// SendAudio plays every full buffer of audio and keeps the remainder until
// more audio arrives or the output is drained.
func (c *Client) SendAudio(audio []byte) error {
	c.audioMu.Lock()
	audio = append(c.leftoverAudio, audio...)
	c.leftoverAudio = nil
	c.audioMu.Unlock()

	bufferSize := c.bufferSize * 2
	for len(audio) >= bufferSize {
		if err := c.write(audio[:bufferSize]); err != nil {
			return err
		}
		audio = audio[bufferSize:]
	}

	c.audioMu.Lock()
	c.leftoverAudio = append(c.leftoverAudio, audio...)
	c.audioMu.Unlock()
	return nil
}

func (c *Client) ClearBuffer() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.leftoverAudio = nil
}

// AwaitDrain plays the remaining partial buffer padded with silence.
func (c *Client) AwaitDrain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.audioMu.Lock()
	remaining := c.leftoverAudio
	c.leftoverAudio = nil
	c.audioMu.Unlock()
	if len(remaining) == 0 {
		return nil
	}

	padded := make([]byte, c.bufferSize*2)
	copy(padded, remaining)
	return c.write(padded)
}

func (c *Client) write(chunk []byte) error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out); err != nil {
		return fmt.Errorf("failed to decode audio: %w", err)
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
