// Package builtin ships the capabilities every workflow can register out of
// the box: web content fetching, local file access, and a reasoning
// scratchpad. All of them are ordinary Capability implementations; nothing
// here is special-cased by the engine.
package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"loom/internal/capability"
)

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultMaxContentLen = 100_000
	maxRedirects         = 10
)

// WebFetchConfig tunes the web_fetch capability.
type WebFetchConfig struct {
	Timeout       time.Duration
	MaxContentLen int
	UserAgent     string
}

type webFetch struct {
	client        *http.Client
	maxContentLen int
	userAgent     string
}

// NewWebFetch builds the web_fetch capability: fetches a URL and extracts
// readable text with goquery. Pair it with the registry's result cache; the
// capability itself is stateless.
func NewWebFetch(cfg WebFetchConfig) capability.Capability {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxLen := cfg.MaxContentLen
	if maxLen <= 0 {
		maxLen = defaultMaxContentLen
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "loom-agent/1.0"
	}
	return &webFetch{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxContentLen: maxLen,
		userAgent:     userAgent,
	}
}

func (t *webFetch) Definition() capability.Definition {
	return capability.Definition{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable text content.",
		Parameters: capability.ParameterSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"url":      {Type: "string", Description: "Absolute http(s) URL to fetch."},
				"selector": {Type: "string", Description: "Optional CSS selector limiting extraction."},
			},
			Required: []string{"url"},
		},
	}
}

func (t *webFetch) Execute(ctx context.Context, args map[string]any) (*capability.Result, error) {
	rawURL, _ := args["url"].(string)
	parsed, err := neturl.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q: http or https required", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", parsed.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", parsed.String(), resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, int64(t.maxContentLen)*4)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", parsed.String(), err)
	}

	selector, _ := args["selector"].(string)
	content := extractText(doc, selector)
	truncated := false
	if len(content) > t.maxContentLen {
		content = content[:t.maxContentLen]
		truncated = true
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	return &capability.Result{
		Content: content,
		Data: map[string]any{
			"output":    content,
			"title":     title,
			"url":       parsed.String(),
			"truncated": truncated,
		},
	}, nil
}

func extractText(doc *goquery.Document, selector string) string {
	doc.Find("script, style, noscript, iframe").Remove()

	root := doc.Selection
	if selector != "" {
		if sel := doc.Find(selector); sel.Length() > 0 {
			root = sel
		}
	}

	var lines []string
	root.Find("h1, h2, h3, h4, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(root.Text()), " ")
	}
	return strings.Join(lines, "\n")
}
