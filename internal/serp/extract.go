package serp

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/FranksOps/liaison/internal/storage"
	"github.com/PuerkitoBio/goquery"
)

const snippetLimit = 300

// postURLPattern matches public post paths; group 1 is the path, group 2 the
// activity id.
var postURLPattern = regexp.MustCompile(
	`(?:https?://)?(?:www\.)?linkedin\.com/posts/([a-zA-Z0-9_.%-]+_[a-zA-Z0-9_%-]+-activity-(\d+)-[a-zA-Z0-9]+)`,
)

// ExtractPosts pulls post URLs out of a search result page, deduplicated by
// activity id in first-seen order. Links hidden inside percent-encoded
// redirect URLs are found on a second pass over the unescaped markup.
func ExtractPosts(markup []byte) []storage.PostResult {
	// Without a parse tree the URLs are still usable; titles stay empty.
	doc, _ := goquery.NewDocumentFromReader(bytes.NewReader(markup))

	seen := make(map[string]bool)
	var posts []storage.PostResult

	scan := func(text string) {
		for _, m := range postURLPattern.FindAllStringSubmatch(text, -1) {
			path, id := m[1], m[2]
			if seen[id] {
				continue
			}
			seen[id] = true

			post := storage.PostResult{URL: "https://www.linkedin.com/posts/" + path}
			if doc != nil {
				post.Title, post.Snippet = describe(doc, id)
			}
			posts = append(posts, post)
		}
	}

	raw := string(markup)
	scan(raw)
	if unescaped := percentUnescape(raw); unescaped != raw {
		scan(unescaped)
	}
	return posts
}

// describe finds the first anchor pointing at the activity id and returns its
// text and the text of its nearest container.
func describe(doc *goquery.Document, id string) (title, snippet string) {
	link := doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return strings.Contains(href, id)
	}).First()
	if link.Length() == 0 {
		return "", ""
	}

	title = normalizeSpace(link.Text())
	if parent := link.Closest("div, li, article"); parent.Length() > 0 {
		snippet = truncateRunes(normalizeSpace(parent.Text()), snippetLimit)
	}
	return title, snippet
}

// percentUnescape decodes the valid %XX sequences and leaves everything else,
// since one stray '%' in a page would make url.PathUnescape reject it whole.
func percentUnescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
