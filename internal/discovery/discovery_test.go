package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"socialnerd/internal/browser"
	"socialnerd/internal/config"
	"socialnerd/internal/governor"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubElement struct{}

func (stubElement) Click(ctx context.Context) error              { return nil }
func (stubElement) Input(ctx context.Context, text string) error { return nil }
func (stubElement) PressEnter(ctx context.Context) error         { return nil }
func (stubElement) Text(ctx context.Context) (string, error)     { return "", nil }
func (stubElement) Attribute(ctx context.Context, name string) (string, error) {
	return "", nil
}

// feedTransport serves a scripted feed: scroll evals are counted, the
// extraction eval returns the configured payload.
type feedTransport struct {
	payload     string
	scrolls     int
	extractions int
	navigated   []string
	feedVisible bool
	evalErr     error
}

func (t *feedTransport) Navigate(ctx context.Context, url string) error {
	t.navigated = append(t.navigated, url)
	return nil
}

func (t *feedTransport) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	if !t.feedVisible {
		return nil, errors.New("timeout waiting for feed")
	}
	return stubElement{}, nil
}

func (t *feedTransport) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	if t.evalErr != nil {
		return nil, t.evalErr
	}
	if len(js) > 0 && js[len(js)-1] != '}' {
		// Scroll expressions end in ")"; the collector ends in "}".
		t.scrolls++
		return json.RawMessage("null"), nil
	}
	t.extractions++
	return json.RawMessage(t.payload), nil
}

func (t *feedTransport) Cookies(ctx context.Context) ([]browser.Cookie, error) { return nil, nil }
func (t *feedTransport) SetCookie(ctx context.Context, c browser.Cookie) error { return nil }
func (t *feedTransport) ClearCookies(ctx context.Context) error                { return nil }
func (t *feedTransport) Close() error                                          { return nil }

type staticProvider struct {
	transport browser.Transport
	err       error
}

func (p staticProvider) Transport() (browser.Transport, error) { return p.transport, p.err }

func testPipeline(t *feedTransport) *Pipeline {
	cfg := config.DefaultConfig().Platform
	cfg.StepTimeoutMs = 50
	cfg.ScrollPasses = 1
	gov := governor.New(governor.Policy{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		WindowLimit: 100,
		WindowSize:  time.Minute,
	})
	return NewPipeline(staticProvider{transport: t}, gov, cfg)
}

func TestDiscover_FiltersAndCaps(t *testing.T) {
	// 8 items, 3 below the engagement floor of 100.
	items := []rawItem{
		{Author: "alice", Text: "hot take one", Likes: "1.2K", Shares: "300", Link: "/alice/status/1"},
		{Author: "bob", Text: "below the bar", Likes: "10", Shares: "5", Link: "/bob/status/2"},
		{Author: "carol", Text: "big thread", Likes: "45K", Shares: "2,100", Link: "/carol/status/3"},
		{Author: "dave", Text: "barely noticed", Likes: "50", Shares: "20", Link: "/dave/status/4"},
		{Author: "erin", Text: "viral clip", Likes: "1M", Shares: "88K", Link: "https://twitter.com/erin/status/5"},
		{Author: "frank", Text: "quiet post", Likes: "", Shares: "", Link: "/frank/status/6"},
		{Author: "grace", Text: "solid post", Likes: "500", Shares: "120", Link: "/grace/status/7"},
		{Author: "heidi", Text: "another solid post", Likes: "700", Shares: "0", Link: "/heidi/status/8"},
	}
	payload, err := json.Marshal(items)
	require.NoError(t, err)

	transport := &feedTransport{payload: string(payload), feedVisible: true}
	pipeline := testPipeline(transport)

	posts, err := pipeline.Discover(context.Background(), 5, 100)
	require.NoError(t, err)

	want := []Post{
		{ID: "1", AuthorHandle: "alice", Text: "hot take one", LikeCount: 1200, ShareCount: 300, Permalink: "https://twitter.com/alice/status/1"},
		{ID: "3", AuthorHandle: "carol", Text: "big thread", LikeCount: 45000, ShareCount: 2100, Permalink: "https://twitter.com/carol/status/3"},
		{ID: "5", AuthorHandle: "erin", Text: "viral clip", LikeCount: 1000000, ShareCount: 88000, Permalink: "https://twitter.com/erin/status/5"},
		{ID: "7", AuthorHandle: "grace", Text: "solid post", LikeCount: 500, ShareCount: 120, Permalink: "https://twitter.com/grace/status/7"},
		{ID: "8", AuthorHandle: "heidi", Text: "another solid post", LikeCount: 700, ShareCount: 0, Permalink: "https://twitter.com/heidi/status/8"},
	}
	if diff := cmp.Diff(want, posts); diff != "" {
		t.Errorf("posts mismatch (-want +got):\n%s", diff)
	}
	for _, p := range posts {
		assert.GreaterOrEqual(t, p.Engagement(), 100)
	}

	assert.Equal(t, 1, transport.scrolls)
	assert.Equal(t, 1, transport.extractions)
}

func TestDiscover_SkipsMalformedItems(t *testing.T) {
	items := []rawItem{
		{Author: "alice", Text: "fine", Likes: "200", Shares: "10", Link: "/alice/status/1"},
		{Author: "bob", Text: "", Likes: "99K", Shares: "1K", Link: "/bob/status/2"}, // no text
		{Author: "carol", Text: "no link", Likes: "300", Shares: "5", Link: ""},      // no permalink
		{Author: "dave", Text: "also fine", Likes: "150", Shares: "0", Link: "/dave/status/4"},
	}
	payload, err := json.Marshal(items)
	require.NoError(t, err)

	transport := &feedTransport{payload: string(payload), feedVisible: true}
	pipeline := testPipeline(transport)

	posts, err := pipeline.Discover(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "1", posts[0].ID)
	assert.Equal(t, "4", posts[1].ID)
}

func TestDiscover_EmptyFeedIsNotAnError(t *testing.T) {
	transport := &feedTransport{payload: "[]", feedVisible: true}
	pipeline := testPipeline(transport)

	posts, err := pipeline.Discover(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestDiscover_FeedNeverRenders(t *testing.T) {
	transport := &feedTransport{feedVisible: false}
	pipeline := testPipeline(transport)

	_, err := pipeline.Discover(context.Background(), 10, 0)
	var de *DiscoveryError
	require.True(t, errors.As(err, &de))
}

func TestDiscover_NoSession(t *testing.T) {
	gov := governor.New(governor.DefaultPolicy())
	pipeline := NewPipeline(staticProvider{err: errors.New("not authenticated")}, gov, config.DefaultConfig().Platform)

	_, err := pipeline.Discover(context.Background(), 10, 0)
	var de *DiscoveryError
	require.True(t, errors.As(err, &de))
}

func TestParseEngagement(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"0", 0},
		{"42", 42},
		{"1,234", 1234},
		{"12.3K", 12300},
		{"12.3k", 12300},
		{"32.3K", 32300},
		{"45.7K", 45700},
		{"1M", 1000000},
		{"2.5M", 2500000},
		{"2.01M", 2010000},
		{"9.99M", 9990000},
		{" 500 ", 500},
		{"n/a", 0},
		{"-5", 0},
		{"12abc", 0},
		{"1.2.3K", 0},
		{"3K4", 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseEngagement(tc.in))
		})
	}
}

// Every one-decimal K value must survive the float round trip exactly.
func TestParseEngagement_DecimalGrid(t *testing.T) {
	for whole := 0; whole < 100; whole++ {
		for tenth := 0; tenth < 10; tenth++ {
			in := fmt.Sprintf("%d.%dK", whole, tenth)
			want := whole*1000 + tenth*100
			assert.Equal(t, want, ParseEngagement(in), "input %q", in)
		}
	}
	for whole := 0; whole < 10; whole++ {
		for cent := 0; cent < 100; cent++ {
			in := fmt.Sprintf("%d.%02dM", whole, cent)
			want := whole*1000000 + cent*10000
			assert.Equal(t, want, ParseEngagement(in), "input %q", in)
		}
	}
}

func TestPostIDFromLink(t *testing.T) {
	assert.Equal(t, "123", postIDFromLink("/someone/status/123"))
	assert.Equal(t, "123", postIDFromLink("/someone/status/123/photo/1"))
	assert.Equal(t, "/someone", postIDFromLink("/someone"))
}
