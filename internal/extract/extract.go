// Package extract turns HTML into readable text, both for entry bodies that
// carry markup and for pages fetched with `lessonlog add --url`.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const (
	maxBodyBytes = 5 * 1024 * 1024
	maxTextBytes = 10 * 1024
)

// Fetch retrieves a page and returns its readable text
func Fetch(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "lessonlog/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text := truncate(htmlText(string(body)), maxTextBytes)
	if text == "" {
		return "", fmt.Errorf("no text content found")
	}
	return text, nil
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

var (
	tagPattern    = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(?:\s[^<>]*)?/?>`)
	entityPattern = regexp.MustCompile(`&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
)

// Element names that mark a body as HTML. Generic type parameters such as
// List<String> look like tags but are not in this set.
var htmlElements = map[string]bool{
	"a": true, "abbr": true, "article": true, "aside": true, "b": true,
	"blockquote": true, "body": true, "br": true, "code": true, "div": true,
	"em": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "head": true, "header": true,
	"hr": true, "html": true, "i": true, "iframe": true, "img": true,
	"li": true, "main": true, "nav": true, "noscript": true, "ol": true,
	"p": true, "pre": true, "script": true, "section": true, "small": true,
	"span": true, "strong": true, "style": true, "table": true, "tbody": true,
	"td": true, "th": true, "thead": true, "title": true, "tr": true,
	"u": true, "ul": true,
}

// PlainText strips markup from an entry body. Only bodies with real HTML
// elements go through the parser; anything else is returned trimmed with its
// line breaks and comparison signs intact, entities decoded.
func PlainText(s string) string {
	if hasMarkup(s) {
		return htmlText(s)
	}
	s = strings.TrimSpace(s)
	if entityPattern.MatchString(s) {
		return html.UnescapeString(s)
	}
	return s
}

func hasMarkup(s string) bool {
	if !strings.Contains(s, "<") {
		return false
	}
	for _, m := range tagPattern.FindAllStringSubmatch(s, -1) {
		if htmlElements[strings.ToLower(m[1])] {
			return true
		}
	}
	return false
}

// Tags whose content is never readable text
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true,
}

func htmlText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// back off to a rune boundary
	cut := max
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
