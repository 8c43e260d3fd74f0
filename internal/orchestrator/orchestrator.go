// Package orchestrator runs the discover/synthesize/review/post cycle and
// owns the draft queue in between. Drafts are held in memory only; a
// reply the user never approved is never persisted or published.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"socialnerd/internal/discovery"
	"socialnerd/internal/governor"
	"socialnerd/internal/logging"
	"socialnerd/internal/poster"
	"socialnerd/internal/synthesis"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxReplyLen is the platform's reply character cap.
const maxReplyLen = 240

// Discoverer yields engagement-filtered posts.
type Discoverer interface {
	Discover(ctx context.Context, limit, minEngagement int) ([]discovery.Post, error)
}

// Synthesizer produces one reply draft per request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (string, error)
}

// Publisher posts one approved reply.
type Publisher interface {
	Post(ctx context.Context, permalink, replyText string) (*poster.Confirmation, error)
}

// Draft is one synthesized reply awaiting review.
type Draft struct {
	ID           string
	PostID       string
	Permalink    string
	SourceText   string
	AuthorHandle string
	Text         string
	Tone         synthesis.Tone
	Instructions string
	EditedByUser bool
	CreatedAt    time.Time
}

// CycleParams tunes one discovery/synthesis pass.
type CycleParams struct {
	Limit         int
	MinEngagement int
	Tone          synthesis.Tone
	Instructions  string
	// Concurrency bounds parallel synthesis calls. Zero means sequential.
	Concurrency int
}

// Orchestrator wires the pipeline stages together around a shared draft
// queue.
type Orchestrator struct {
	discoverer  Discoverer
	synthesizer Synthesizer
	publisher   Publisher
	gov         *governor.Governor

	mu     sync.Mutex
	drafts []*Draft
}

// New creates an orchestrator over already-constructed stages.
func New(discoverer Discoverer, synthesizer Synthesizer, publisher Publisher, gov *governor.Governor) *Orchestrator {
	return &Orchestrator{
		discoverer:  discoverer,
		synthesizer: synthesizer,
		publisher:   publisher,
		gov:         gov,
	}
}

// RunCycle discovers trending posts and synthesizes one draft per post.
// Per-post synthesis failures are logged and skipped; a rate limit aborts
// the remaining work and surfaces so the caller can report the cooldown.
// Returns the number of drafts added.
func (o *Orchestrator) RunCycle(ctx context.Context, params CycleParams) (int, error) {
	posts, err := o.discoverer.Discover(ctx, params.Limit, params.MinEngagement)
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		logging.Discovery("cycle: nothing trending above the engagement floor")
		return 0, nil
	}

	results := make([]*Draft, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	if params.Concurrency > 0 {
		g.SetLimit(params.Concurrency)
	} else {
		g.SetLimit(1)
	}

	for i, post := range posts {
		g.Go(func() error {
			var text string
			err := o.gov.Execute(gctx, "synthesize", func(ctx context.Context) error {
				var err error
				text, err = o.synthesizer.Synthesize(ctx, synthesis.Request{
					PostText:     post.Text,
					Tone:         params.Tone,
					Instructions: params.Instructions,
				})
				return err
			})
			if err != nil {
				if governor.IsRateLimited(err) {
					return err
				}
				logging.Synthesis("cycle: skipping post %s: %v", post.ID, err)
				return nil
			}
			results[i] = &Draft{
				ID:           uuid.NewString(),
				PostID:       post.ID,
				Permalink:    post.Permalink,
				SourceText:   post.Text,
				AuthorHandle: post.AuthorHandle,
				Text:         text,
				Tone:         params.Tone,
				Instructions: params.Instructions,
				CreatedAt:    time.Now(),
			}
			return nil
		})
	}
	groupErr := g.Wait()

	added := 0
	o.mu.Lock()
	for _, draft := range results {
		if draft != nil {
			o.drafts = append(o.drafts, draft)
			added++
		}
	}
	o.mu.Unlock()

	logging.Synthesis("cycle: %d drafts from %d posts", added, len(posts))
	return added, groupErr
}

// Drafts returns the pending drafts in feed order.
func (o *Orchestrator) Drafts() []Draft {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Draft, len(o.drafts))
	for i, d := range o.drafts {
		out[i] = *d
	}
	return out
}

// Draft looks up one pending draft.
func (o *Orchestrator) Draft(id string) (Draft, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, d := range o.drafts {
		if d.ID == id {
			return *d, true
		}
	}
	return Draft{}, false
}

// EditDraft replaces the draft text with a user revision.
func (o *Orchestrator) EditDraft(id, text string) error {
	if err := validateReply(text); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, d := range o.drafts {
		if d.ID == id {
			d.Text = text
			d.EditedByUser = true
			return nil
		}
	}
	return fmt.Errorf("no pending draft %s", id)
}

// Regenerate re-synthesizes the draft from its original inputs, replacing
// the text and clearing any user edit.
func (o *Orchestrator) Regenerate(ctx context.Context, id string) error {
	o.mu.Lock()
	var target *Draft
	for _, d := range o.drafts {
		if d.ID == id {
			target = d
			break
		}
	}
	o.mu.Unlock()
	if target == nil {
		return fmt.Errorf("no pending draft %s", id)
	}

	var text string
	err := o.gov.Execute(ctx, "synthesize", func(ctx context.Context) error {
		var err error
		text, err = o.synthesizer.Synthesize(ctx, synthesis.Request{
			PostText:     target.SourceText,
			Tone:         target.Tone,
			Instructions: target.Instructions,
		})
		return err
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	target.Text = text
	target.EditedByUser = false
	o.mu.Unlock()
	return nil
}

// Discard drops a pending draft without posting it.
func (o *Orchestrator) Discard(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.removeLocked(id) != nil
}

// Submit publishes a pending draft. The draft is consumed before the
// posting sequence starts so a failed submission is never blindly
// replayed; the caller re-runs synthesis if it wants another attempt.
func (o *Orchestrator) Submit(ctx context.Context, id string) (*poster.Confirmation, error) {
	o.mu.Lock()
	draft := o.removeLocked(id)
	o.mu.Unlock()
	if draft == nil {
		return nil, fmt.Errorf("no pending draft %s", id)
	}

	conf, err := o.publisher.Post(ctx, draft.Permalink, draft.Text)
	if err != nil {
		return nil, fmt.Errorf("submit draft %s: %w", id, err)
	}
	return conf, nil
}

func (o *Orchestrator) removeLocked(id string) *Draft {
	for i, d := range o.drafts {
		if d.ID == id {
			o.drafts = append(o.drafts[:i], o.drafts[i+1:]...)
			return d
		}
	}
	return nil
}

func validateReply(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty reply")
	}
	if n := len([]rune(text)); n > maxReplyLen {
		return fmt.Errorf("reply is %d characters, cap is %d", n, maxReplyLen)
	}
	return nil
}
