package orchestration

import (
	"context"
	"errors"
	"strings"

	"github.com/koscakluka/ema-referrals/core/speechtotext"
)

// speechCapture guards an optional capture service so an unconfigured one
// behaves as an unsupported platform.
type speechCapture struct {
	client SpeechCapture
}

func (c *speechCapture) set(client SpeechCapture) {
	if isNilClient(client) {
		c.client = nil
		return
	}
	c.client = client
}

func (c *speechCapture) isConfigured() bool {
	return c != nil && c.client != nil
}

func (c *speechCapture) IsSupported() bool {
	return c.isConfigured() && c.client.IsSupported()
}

func (c *speechCapture) Start(ctx context.Context, opts ...speechtotext.StartOption) error {
	if !c.isConfigured() {
		return speechtotext.ErrNotSupported
	}
	return c.client.Start(ctx, opts...)
}

func (c *speechCapture) Stop() {
	if !c.isConfigured() {
		return
	}
	if err := c.client.Stop(); err != nil && !errors.Is(err, speechtotext.ErrNotStarted) {
		logger.Warn("failed to stop speech capture", "error", err)
	}
}

// workingTranscript is the committed final segments of the current listening
// session followed by the latest interim segment.
type workingTranscript struct {
	committed []string
	interim   string
}

func (t *workingTranscript) commit(segment string) {
	t.interim = ""
	if segment = strings.TrimSpace(segment); segment != "" {
		t.committed = append(t.committed, segment)
	}
}

func (t *workingTranscript) setInterim(segment string) {
	t.interim = strings.TrimSpace(segment)
}

func (t *workingTranscript) reset() {
	t.committed = nil
	t.interim = ""
}

func (t *workingTranscript) String() string {
	parts := t.committed
	if t.interim != "" {
		parts = append(parts[:len(parts):len(parts)], t.interim)
	}
	return strings.Join(parts, " ")
}
