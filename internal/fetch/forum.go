package fetch

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/model"
)

// Forum page selectors. Travel forums share this thread-list/post layout.
const (
	selThreadList  = "a.thread-title, div.forum-list a.title"
	selPosts       = "div.post, article.post"
	selPostContent = "div.post-body, div.postBody, div.content"
	selPostAuthor  = "a.username, span.author"
	selPostDate    = "time, span.post-date, span.postDate"
	selNextPage    = "a.next, a[rel=next]"
)

// postDateLayouts are tried in order when parsing forum post timestamps.
var postDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"Jan 2, 2006 3:04 PM",
	"02/01/2006 15:04",
}

// ForumStrategy scrapes discussion forums: a thread index page linking to
// thread pages, each holding an ordered sequence of user posts.
type ForumStrategy struct{}

func (f *ForumStrategy) Name() string { return "forum" }

// BuildRequests seeds the source with its configured index URL.
func (f *ForumStrategy) BuildRequests(source model.SourceConfig) []string {
	return []string{source.URL}
}

// DetectBlock recognizes forum-specific interstitials.
func (f *ForumStrategy) DetectBlock(page *Page) (bool, BlockType) {
	lower := strings.ToLower(string(page.Body))
	if strings.Contains(lower, "unusual traffic from your network") ||
		strings.Contains(lower, "verify you are a human") {
		return true, BlockCaptcha
	}
	return false, BlockNone
}

// ParseArtifacts extracts posts from a thread page, or thread links from an
// index page. Each post becomes one RawArtifact carrying the environment
// signals readable from the markup.
func (f *ForumStrategy) ParseArtifacts(page *Page, source model.SourceConfig) (ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return ParseResult{}, eris.Wrap(err, "forum: parse html")
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return ParseResult{}, eris.Wrap(err, "forum: parse page url")
	}

	var result ParseResult

	// Index page: collect thread links to follow.
	doc.Find(selThreadList).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		result.Follow = append(result.Follow, resolveURL(base, href))
	})

	// Thread page: extract posts in document order.
	var postTimes []time.Time
	doc.Find(selPosts).Each(func(_ int, post *goquery.Selection) {
		content := strings.TrimSpace(post.Find(selPostContent).First().Text())
		if content == "" {
			return
		}

		author := strings.TrimSpace(post.Find(selPostAuthor).First().Text())
		authorURL, _ := post.Find(selPostAuthor).First().Attr("href")

		postedAt := parsePostDate(post.Find(selPostDate).First())
		if !postedAt.IsZero() {
			postTimes = append(postTimes, postedAt)
		}

		artifact := model.RawArtifact{
			ID:         uuid.NewString(),
			SourceID:   source.ID,
			URL:        page.URL,
			RawText:    content,
			AuthorName: author,
			AuthorURL:  resolveURL(base, authorURL),
			CapturedAt: page.FetchedAt,
			Signals:    readPostSignals(post),
		}
		result.Artifacts = append(result.Artifacts, artifact)
	})

	// Posting-interval regularity feeds the timing-variance signal.
	if gaps := intervalGapsMS(postTimes); len(gaps) > 0 {
		for i := range result.Artifacts {
			result.Artifacts[i].Signals.InteractionGapsMS = gaps
		}
	}

	// Pagination.
	if next, ok := doc.Find(selNextPage).First().Attr("href"); ok && next != "" {
		result.Follow = append(result.Follow, resolveURL(base, next))
	}

	if len(result.Artifacts) == 0 && len(result.Follow) == 0 {
		zap.L().Debug("forum: page yielded nothing",
			zap.String("url", page.URL),
		)
	}

	return result, nil
}

// readPostSignals extracts the automation markers some forums annotate on
// posts their own defenses flagged: a triggered honeypot field, a recorded
// client IP, or a headless-browser fingerprint note.
func readPostSignals(post *goquery.Selection) model.EnvironmentSignals {
	var sig model.EnvironmentSignals

	if v, ok := post.Attr("data-honeypot"); ok && (v == "1" || v == "true") {
		sig.HoneypotTriggered = true
	}
	if post.Find("input[type=hidden].hp-field[value!='']").Length() > 0 {
		sig.HoneypotTriggered = true
	}
	if ip, ok := post.Attr("data-client-ip"); ok {
		sig.ClientIP = ip
	}
	if v, ok := post.Attr("data-headless"); ok && (v == "1" || v == "true") {
		sig.HeadlessMarkers = true
		sig.NavigatorWebdriver = true
	}
	if ua, ok := post.Attr("data-user-agent"); ok {
		sig.UserAgent = ua
		lower := strings.ToLower(ua)
		if strings.Contains(lower, "headless") || strings.Contains(lower, "phantomjs") {
			sig.HeadlessMarkers = true
		}
	}

	return sig
}

func parsePostDate(sel *goquery.Selection) time.Time {
	if dt, ok := sel.Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, dt); err == nil {
			return t
		}
	}
	raw := strings.TrimSpace(sel.Text())
	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// intervalGapsMS converts ordered timestamps into millisecond deltas.
func intervalGapsMS(times []time.Time) []float64 {
	if len(times) < 2 {
		return nil
	}
	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, float64(times[i].Sub(times[i-1]).Milliseconds()))
	}
	return gaps
}

func resolveURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
