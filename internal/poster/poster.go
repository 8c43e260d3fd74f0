// Package poster publishes a reply under a target post with a
// human-plausible interaction sequence: navigate, open the composer,
// type at an uneven cadence, submit, settle. Fixed-rate input is a
// primary bot-detection signal, so the per-character delay is drawn
// uniformly from a configured range.
package poster

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"socialnerd/internal/browser"
	"socialnerd/internal/config"
	"socialnerd/internal/discovery"
	"socialnerd/internal/governor"
	"socialnerd/internal/logging"
)

// maxReplyLen is the platform's reply character cap.
const maxReplyLen = 240

// Posting failure reasons.
const (
	ReasonInvalidInput     = "invalid_input"
	ReasonElementNotReady  = "element_not_ready"
	ReasonTransportFailure = "transport_failure"
)

// PostError reports a failed posting sequence and which step broke.
type PostError struct {
	Step   string
	Reason string
	Err    error
}

func (e *PostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("post failed at %s (%s): %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("post failed at %s (%s)", e.Step, e.Reason)
}

func (e *PostError) Unwrap() error { return e.Err }

// Confirmation is the receipt for one published reply.
type Confirmation struct {
	PostID   string
	PostedAt time.Time
}

// Sequencer drives the posting interaction sequence over an
// authenticated transport.
type Sequencer struct {
	provider discovery.TransportProvider
	gov      *governor.Governor
	cfg      config.PlatformConfig
	typing   config.TypingConfig
}

// NewSequencer creates a posting sequencer over an authenticated session.
func NewSequencer(provider discovery.TransportProvider, gov *governor.Governor, cfg config.PlatformConfig, typing config.TypingConfig) *Sequencer {
	return &Sequencer{provider: provider, gov: gov, cfg: cfg, typing: typing}
}

// Post publishes replyText under the post at permalink. Input is
// validated before any platform interaction so a bad draft never costs
// quota.
func (s *Sequencer) Post(ctx context.Context, permalink, replyText string) (*Confirmation, error) {
	if strings.TrimSpace(replyText) == "" {
		return nil, &PostError{Step: "validate", Reason: ReasonInvalidInput, Err: fmt.Errorf("empty reply")}
	}
	if n := len([]rune(replyText)); n > maxReplyLen {
		return nil, &PostError{Step: "validate", Reason: ReasonInvalidInput, Err: fmt.Errorf("reply is %d characters, cap is %d", n, maxReplyLen)}
	}
	if permalink == "" {
		return nil, &PostError{Step: "validate", Reason: ReasonInvalidInput, Err: fmt.Errorf("empty permalink")}
	}

	transport, err := s.provider.Transport()
	if err != nil {
		return nil, err
	}

	err = s.gov.Execute(ctx, "post", func(ctx context.Context) error {
		return s.sequence(ctx, transport, permalink, replyText)
	})
	if err != nil {
		return nil, err
	}

	logging.Posting("reply published under %s (len=%d)", permalink, len(replyText))
	return &Confirmation{
		PostID:   postIDFromPermalink(permalink),
		PostedAt: time.Now(),
	}, nil
}

// sequence is one posting attempt. Every step failure is permanent: a
// half-typed composer must not be blindly retried, the caller decides
// whether to start over.
func (s *Sequencer) sequence(ctx context.Context, transport browser.Transport, permalink, replyText string) error {
	sel := s.cfg.Selectors

	if err := transport.Navigate(ctx, permalink); err != nil {
		return governor.Permanent(&PostError{Step: "navigate", Reason: ReasonTransportFailure, Err: err})
	}

	replyBtn, err := transport.WaitVisible(ctx, sel.ReplyButton, s.cfg.StepTimeout())
	if err != nil {
		return governor.Permanent(&PostError{Step: "open_composer", Reason: ReasonElementNotReady, Err: err})
	}
	if err := replyBtn.Click(ctx); err != nil {
		return governor.Permanent(&PostError{Step: "open_composer", Reason: ReasonElementNotReady, Err: err})
	}

	composer, err := transport.WaitVisible(ctx, sel.ReplyComposer, s.cfg.StepTimeout())
	if err != nil {
		return governor.Permanent(&PostError{Step: "open_composer", Reason: ReasonElementNotReady, Err: err})
	}

	if err := s.typeHumanly(ctx, composer, replyText); err != nil {
		return governor.Permanent(&PostError{Step: "type", Reason: ReasonTransportFailure, Err: err})
	}

	submit, err := transport.WaitVisible(ctx, sel.SubmitButton, s.cfg.StepTimeout())
	if err != nil {
		return governor.Permanent(&PostError{Step: "submit", Reason: ReasonElementNotReady, Err: err})
	}
	if err := submit.Click(ctx); err != nil {
		return governor.Permanent(&PostError{Step: "submit", Reason: ReasonElementNotReady, Err: err})
	}

	// Let the platform register the submission before the page is reused.
	if err := sleepCtx(ctx, s.typing.Settle()); err != nil {
		return governor.Permanent(err)
	}
	return nil
}

// typeHumanly feeds the reply into the composer one character at a time
// with a randomized inter-key delay.
func (s *Sequencer) typeHumanly(ctx context.Context, composer browser.Element, text string) error {
	min := s.typing.MinCharDelay()
	max := s.typing.MaxCharDelay()
	if max < min {
		max = min
	}
	spread := max - min

	for _, r := range text {
		if err := composer.Input(ctx, string(r)); err != nil {
			return err
		}
		delay := min
		if spread > 0 {
			delay += time.Duration(rand.Int63n(int64(spread) + 1))
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func postIDFromPermalink(permalink string) string {
	const marker = "/status/"
	idx := strings.LastIndex(permalink, marker)
	if idx < 0 {
		return permalink
	}
	id := permalink[idx+len(marker):]
	if slash := strings.IndexByte(id, '/'); slash >= 0 {
		id = id[:slash]
	}
	return id
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
