// Package discovery extracts trending posts from the platform feed and
// filters them by engagement so downstream synthesis only sees posts
// worth replying to.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"socialnerd/internal/browser"
	"socialnerd/internal/config"
	"socialnerd/internal/governor"
	"socialnerd/internal/logging"
)

// TransportProvider hands out an authenticated transport. Satisfied by
// session.Manager; kept narrow so tests can supply fakes.
type TransportProvider interface {
	Transport() (browser.Transport, error)
}

// Post is one extracted feed item.
type Post struct {
	ID           string `json:"id"`
	AuthorHandle string `json:"author_handle"`
	Text         string `json:"text"`
	LikeCount    int    `json:"like_count"`
	ShareCount   int    `json:"share_count"`
	Permalink    string `json:"permalink"`
}

// Engagement is the filter metric: likes plus shares.
func (p Post) Engagement() int { return p.LikeCount + p.ShareCount }

// DiscoveryError reports that the extraction pass as a whole failed.
// Individual malformed feed items are skipped, not reported here.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Pipeline drives feed navigation, scroll loading and extraction.
type Pipeline struct {
	provider TransportProvider
	gov      *governor.Governor
	cfg      config.PlatformConfig
}

// NewPipeline creates a discovery pipeline over an authenticated session.
func NewPipeline(provider TransportProvider, gov *governor.Governor, cfg config.PlatformConfig) *Pipeline {
	return &Pipeline{provider: provider, gov: gov, cfg: cfg}
}

// rawItem mirrors the JSON shape the in-page extraction script produces.
// Counts arrive as display strings ("1.2K") and are normalized in Go.
type rawItem struct {
	Author string `json:"author"`
	Text   string `json:"text"`
	Likes  string `json:"likes"`
	Shares string `json:"shares"`
	Link   string `json:"link"`
}

// Discover navigates to the trending feed, scrolls it to force lazy
// loading, extracts visible posts and returns at most limit posts whose
// engagement meets minEngagement, ordered as they appeared in the feed.
// An empty result is not an error.
func (p *Pipeline) Discover(ctx context.Context, limit, minEngagement int) ([]Post, error) {
	transport, err := p.provider.Transport()
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	var raw []rawItem
	err = p.gov.Execute(ctx, "discover", func(ctx context.Context) error {
		if err := transport.Navigate(ctx, p.cfg.TrendingURL()); err != nil {
			return governor.Transient(err)
		}
		if _, err := transport.WaitVisible(ctx, p.cfg.Selectors.PostItem, p.cfg.StepTimeout()); err != nil {
			return governor.Transient(fmt.Errorf("feed never rendered: %w", err))
		}

		passes := p.cfg.ScrollPasses
		if passes <= 0 {
			passes = 3
		}
		for i := 0; i < passes; i++ {
			if _, err := transport.Eval(ctx, `() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
				return governor.Transient(fmt.Errorf("scroll pass %d: %w", i+1, err))
			}
			if err := sleepCtx(ctx, 1500*time.Millisecond); err != nil {
				return governor.Permanent(err)
			}
		}

		res, err := transport.Eval(ctx, p.extractionScript())
		if err != nil {
			return governor.Transient(fmt.Errorf("extract feed: %w", err))
		}
		if err := json.Unmarshal(res, &raw); err != nil {
			return governor.Permanent(fmt.Errorf("decode feed items: %w", err))
		}
		return nil
	})
	if err != nil {
		if governor.IsRateLimited(err) {
			return nil, err
		}
		return nil, &DiscoveryError{Err: err}
	}

	posts := p.normalize(raw, limit, minEngagement)
	logging.Discovery("extracted %d/%d posts (limit=%d, min_engagement=%d)",
		len(posts), len(raw), limit, minEngagement)
	return posts, nil
}

// extractionScript builds the in-page collector. Selectors are injected
// from config so platform drift never requires touching this code.
func (p *Pipeline) extractionScript() string {
	sel := p.cfg.Selectors
	return fmt.Sprintf(`() => {
		const items = [];
		for (const node of document.querySelectorAll(%q)) {
			const pick = (s) => { const el = node.querySelector(s); return el ? el.textContent.trim() : ""; };
			const linkEl = node.querySelector(%q);
			items.push({
				author: pick(%q),
				text:   pick(%q),
				likes:  pick(%q),
				shares: pick(%q),
				link:   linkEl ? linkEl.getAttribute("href") : "",
			});
		}
		return items;
	}`, sel.PostItem, sel.PostLink, sel.AuthorName, sel.PostText, sel.LikeCount, sel.ShareCount)
}

// normalize converts raw display items into Posts, skipping items with no
// text or no permalink, applies the engagement floor and the result cap.
func (p *Pipeline) normalize(raw []rawItem, limit, minEngagement int) []Post {
	posts := make([]Post, 0, len(raw))
	for _, item := range raw {
		if strings.TrimSpace(item.Text) == "" || item.Link == "" {
			logging.DiscoveryWarn("skipping malformed feed item (author=%q)", item.Author)
			continue
		}
		post := Post{
			ID:           postIDFromLink(item.Link),
			AuthorHandle: firstLine(item.Author),
			Text:         strings.TrimSpace(item.Text),
			LikeCount:    ParseEngagement(item.Likes),
			ShareCount:   ParseEngagement(item.Shares),
			Permalink:    absoluteLink(p.cfg.BaseURL, item.Link),
		}
		if post.Engagement() < minEngagement {
			continue
		}
		posts = append(posts, post)
		if limit > 0 && len(posts) >= limit {
			break
		}
	}
	return posts
}

// ParseEngagement converts a platform display count into an integer.
// "1,234" -> 1234, "12.3K" -> 12300, "1M" -> 1000000. Anything
// unparseable counts as zero rather than failing the whole item.
func ParseEngagement(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		multiplier = 1_000
		s = s[:len(s)-1]
	case 'M', 'm':
		multiplier = 1_000_000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0
	}
	// Rounding absorbs the binary representation error of decimal display
	// values ("12.3" * 1000 is 12299.999... as a float).
	return int(math.Round(value * multiplier))
}

// postIDFromLink pulls the trailing status ID out of a permalink path.
func postIDFromLink(link string) string {
	const marker = "/status/"
	idx := strings.LastIndex(link, marker)
	if idx < 0 {
		return link
	}
	id := link[idx+len(marker):]
	if slash := strings.IndexByte(id, '/'); slash >= 0 {
		id = id[:slash]
	}
	return id
}

func absoluteLink(base, link string) string {
	if strings.HasPrefix(link, "http") {
		return link
	}
	return base + link
}

// firstLine trims a display-name block down to its first line; the feed
// renders handle and name stacked in one node.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
