// Package synthesis turns a discovered post into a reply draft via an
// LLM backend. The prompt enforces platform etiquette (length cap, no
// hashtags, no parroting the source) and a selectable tone persona.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"socialnerd/internal/logging"
)

// Tone selects the reply persona.
type Tone string

const (
	ToneFriendly     Tone = "Friendly"
	ToneProfessional Tone = "Professional"
	ToneHumorous     Tone = "Humorous"
	ToneEmpathetic   Tone = "Empathetic"
	ToneAnalytical   Tone = "Analytical"
)

// personas maps each tone to its system instruction. Unknown tones fall
// back to Friendly.
var personas = map[Tone]string{
	ToneFriendly:     "You are a friendly and supportive Twitter user.",
	ToneProfessional: "You are a knowledgeable professional providing insights.",
	ToneHumorous:     "You are a witty Twitter user who adds humor to discussions.",
	ToneEmpathetic:   "You are an empathetic person who shows understanding.",
	ToneAnalytical:   "You are an analytical thinker who provides thoughtful perspectives.",
}

// Tones lists the selectable personas in display order.
func Tones() []Tone {
	return []Tone{ToneFriendly, ToneProfessional, ToneHumorous, ToneEmpathetic, ToneAnalytical}
}

// maxReplyLen is the platform's reply character cap.
const maxReplyLen = 240

// Options tune a single generation call.
type Options struct {
	MaxTokens       int
	Temperature     float32
	PresencePenalty float32
}

// DefaultOptions returns the generation parameters tuned for short,
// non-repetitive replies.
func DefaultOptions() Options {
	return Options{
		MaxTokens:       60,
		Temperature:     0.7,
		PresencePenalty: 0.6,
	}
}

// TextGenerator is the LLM backend boundary. Implementations wrap their
// failures in governor failure classes so the caller's retry policy can
// distinguish throttling from hard errors.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemInstruction, userPrompt string, opts Options) (string, error)
}

// SynthesisError reports that reply generation failed or produced an
// unusable result.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("reply synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Request describes one reply to synthesize.
type Request struct {
	PostText     string
	Tone         Tone
	Instructions string // optional caller-supplied steering, appended to the persona
}

// Adapter binds a generator to the reply prompt contract.
type Adapter struct {
	generator TextGenerator
	opts      Options
}

// NewAdapter creates a synthesis adapter with default generation options.
func NewAdapter(generator TextGenerator) *Adapter {
	return &Adapter{generator: generator, opts: DefaultOptions()}
}

// Synthesize produces one reply draft for the request. The result is
// trimmed and hard-capped at the platform limit.
func (a *Adapter) Synthesize(ctx context.Context, req Request) (string, error) {
	system := systemInstruction(req.Tone, req.Instructions)
	prompt := userPrompt(req.PostText, req.Tone)

	text, err := a.generator.GenerateText(ctx, system, prompt, a.opts)
	if err != nil {
		return "", &SynthesisError{Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &SynthesisError{Err: fmt.Errorf("backend returned an empty reply")}
	}
	text = Truncate(text)

	logging.Synthesis("reply synthesized (tone=%s, len=%d)", effectiveTone(req.Tone), len(text))
	return text, nil
}

// Truncate enforces the platform reply cap, marking cut replies with an
// ellipsis.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxReplyLen {
		return s
	}
	return string(runes[:maxReplyLen-3]) + "..."
}

func effectiveTone(tone Tone) Tone {
	if _, ok := personas[tone]; !ok {
		return ToneFriendly
	}
	return tone
}

func systemInstruction(tone Tone, instructions string) string {
	system := personas[effectiveTone(tone)]
	if instructions != "" {
		system += " Additional instructions: " + instructions
	}
	return system
}

func userPrompt(postText string, tone Tone) string {
	return fmt.Sprintf(`Generate a short, engaging comment (max 2 sentences) for this tweet.
Make it sound natural and conversational.

Tweet: %s

Rules:
- Keep it under 240 characters
- Be positive and constructive
- Don't use hashtags
- Sound natural, not corporate
- Don't repeat the tweet content
- Match the specified tone: %s`, postText, effectiveTone(tone))
}
