package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"socialnerd/internal/discovery"
	"socialnerd/internal/governor"
	"socialnerd/internal/poster"
	"socialnerd/internal/synthesis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	posts []discovery.Post
	err   error
}

func (d fakeDiscoverer) Discover(ctx context.Context, limit, minEngagement int) ([]discovery.Post, error) {
	return d.posts, d.err
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	calls []synthesis.Request
	reply func(req synthesis.Request) (string, error)
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, req synthesis.Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.reply != nil {
		return s.reply(req)
	}
	return "reply to: " + req.PostText, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *fakePublisher) Post(ctx context.Context, permalink, replyText string) (*poster.Confirmation, error) {
	p.mu.Lock()
	p.published = append(p.published, replyText)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &poster.Confirmation{PostID: "1", PostedAt: time.Now()}, nil
}

func testGovernor() *governor.Governor {
	return governor.New(governor.Policy{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		WindowLimit: 100,
		WindowSize:  time.Minute,
	})
}

func somePosts() []discovery.Post {
	return []discovery.Post{
		{ID: "1", Text: "first post", Permalink: "https://twitter.com/a/status/1", AuthorHandle: "a"},
		{ID: "2", Text: "second post", Permalink: "https://twitter.com/b/status/2", AuthorHandle: "b"},
		{ID: "3", Text: "third post", Permalink: "https://twitter.com/c/status/3", AuthorHandle: "c"},
	}
}

func TestRunCycle_OneDraftPerPost(t *testing.T) {
	synth := &fakeSynthesizer{}
	o := New(fakeDiscoverer{posts: somePosts()}, synth, &fakePublisher{}, testGovernor())

	added, err := o.RunCycle(context.Background(), CycleParams{
		Limit: 10, Tone: synthesis.ToneFriendly, Concurrency: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	drafts := o.Drafts()
	require.Len(t, drafts, 3)
	// Feed order is preserved regardless of synthesis completion order.
	assert.Equal(t, "1", drafts[0].PostID)
	assert.Equal(t, "2", drafts[1].PostID)
	assert.Equal(t, "3", drafts[2].PostID)
	for _, d := range drafts {
		assert.NotEmpty(t, d.ID)
		assert.False(t, d.EditedByUser)
		assert.Equal(t, synthesis.ToneFriendly, d.Tone)
	}
}

func TestRunCycle_SkipsFailedSynthesis(t *testing.T) {
	synth := &fakeSynthesizer{reply: func(req synthesis.Request) (string, error) {
		if req.PostText == "second post" {
			return "", errors.New("backend hiccup")
		}
		return "ok", nil
	}}
	o := New(fakeDiscoverer{posts: somePosts()}, synth, &fakePublisher{}, testGovernor())

	added, err := o.RunCycle(context.Background(), CycleParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Len(t, o.Drafts(), 2)
}

func TestRunCycle_RateLimitSurfaces(t *testing.T) {
	synth := &fakeSynthesizer{reply: func(req synthesis.Request) (string, error) {
		return "", governor.RateLimited(errors.New("throttled"), time.Minute)
	}}
	o := New(fakeDiscoverer{posts: somePosts()}, synth, &fakePublisher{}, testGovernor())

	_, err := o.RunCycle(context.Background(), CycleParams{Limit: 10})
	require.Error(t, err)
	assert.True(t, governor.IsRateLimited(err))
}

func TestRunCycle_DiscoveryFailurePropagates(t *testing.T) {
	o := New(fakeDiscoverer{err: errors.New("feed down")}, &fakeSynthesizer{}, &fakePublisher{}, testGovernor())

	_, err := o.RunCycle(context.Background(), CycleParams{Limit: 10})
	require.Error(t, err)
	assert.Empty(t, o.Drafts())
}

func TestEditDraft(t *testing.T) {
	o := New(fakeDiscoverer{posts: somePosts()[:1]}, &fakeSynthesizer{}, &fakePublisher{}, testGovernor())
	_, err := o.RunCycle(context.Background(), CycleParams{Limit: 1})
	require.NoError(t, err)
	id := o.Drafts()[0].ID

	require.NoError(t, o.EditDraft(id, "my own words"))
	d, ok := o.Draft(id)
	require.True(t, ok)
	assert.Equal(t, "my own words", d.Text)
	assert.True(t, d.EditedByUser)

	assert.Error(t, o.EditDraft(id, ""))
	assert.Error(t, o.EditDraft(id, strings.Repeat("a", 241)))
	assert.Error(t, o.EditDraft("missing", "text"))
}

func TestRegenerate_ReplacesTextAndClearsEdit(t *testing.T) {
	calls := 0
	synth := &fakeSynthesizer{reply: func(req synthesis.Request) (string, error) {
		calls++
		if calls == 1 {
			return "first take", nil
		}
		return "second take", nil
	}}
	o := New(fakeDiscoverer{posts: somePosts()[:1]}, synth, &fakePublisher{}, testGovernor())
	_, err := o.RunCycle(context.Background(), CycleParams{Limit: 1, Instructions: "be kind"})
	require.NoError(t, err)
	id := o.Drafts()[0].ID

	require.NoError(t, o.EditDraft(id, "user edit"))
	require.NoError(t, o.Regenerate(context.Background(), id))

	d, _ := o.Draft(id)
	assert.Equal(t, "second take", d.Text)
	assert.False(t, d.EditedByUser)

	// Regeneration reuses the original source and steering.
	last := synth.calls[len(synth.calls)-1]
	assert.Equal(t, "first post", last.PostText)
	assert.Equal(t, "be kind", last.Instructions)
}

func TestSubmit_ConsumesDraftExactlyOnce(t *testing.T) {
	pub := &fakePublisher{}
	o := New(fakeDiscoverer{posts: somePosts()[:1]}, &fakeSynthesizer{}, pub, testGovernor())
	_, err := o.RunCycle(context.Background(), CycleParams{Limit: 1})
	require.NoError(t, err)
	id := o.Drafts()[0].ID

	conf, err := o.Submit(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, conf)
	assert.Len(t, pub.published, 1)
	assert.Empty(t, o.Drafts())

	_, err = o.Submit(context.Background(), id)
	require.Error(t, err)
	assert.Len(t, pub.published, 1)
}

func TestSubmit_FailedPostIsNotReplayable(t *testing.T) {
	pub := &fakePublisher{err: errors.New("composer never opened")}
	o := New(fakeDiscoverer{posts: somePosts()[:1]}, &fakeSynthesizer{}, pub, testGovernor())
	_, err := o.RunCycle(context.Background(), CycleParams{Limit: 1})
	require.NoError(t, err)
	id := o.Drafts()[0].ID

	_, err = o.Submit(context.Background(), id)
	require.Error(t, err)

	// The draft was consumed: no accidental double post on retry.
	_, err = o.Submit(context.Background(), id)
	require.Error(t, err)
	assert.Len(t, pub.published, 1)
}

func TestDiscard(t *testing.T) {
	o := New(fakeDiscoverer{posts: somePosts()[:1]}, &fakeSynthesizer{}, &fakePublisher{}, testGovernor())
	_, err := o.RunCycle(context.Background(), CycleParams{Limit: 1})
	require.NoError(t, err)
	id := o.Drafts()[0].ID

	assert.True(t, o.Discard(id))
	assert.False(t, o.Discard(id))
	assert.Empty(t, o.Drafts())
}
