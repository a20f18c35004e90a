// Package postid turns the many ways a LinkedIn post can be addressed into
// one canonical identifier.
package postid

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrUnrecognized is returned when an address matches no known post format.
var ErrUnrecognized = errors.New("postid: unrecognized post address")

// Kind distinguishes the two URN namespaces LinkedIn uses for posts.
type Kind string

const (
	KindActivity Kind = "activity"
	KindUGCPost  Kind = "ugcPost"
)

// ID is a canonical post identifier.
type ID struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// URN returns the identifier in urn:li:<kind>:<value> form.
func (id ID) URN() string {
	return "urn:li:" + string(id.Kind) + ":" + id.Value
}

// ActivityURN returns urn:li:activity:<value> regardless of kind.
func (id ID) ActivityURN() string {
	return "urn:li:activity:" + id.Value
}

func (id ID) String() string { return id.URN() }

type pattern struct {
	re   *regexp.Regexp
	kind Kind
}

// Ordered from most to least specific: an explicit URN must win over a
// loose numeric run that happens to sit in the same string.
var patterns = []pattern{
	{regexp.MustCompile(`urn:li:activity:(\d+)`), KindActivity},
	{regexp.MustCompile(`urn:li:ugcPost:(\d+)`), KindUGCPost},
	{regexp.MustCompile(`activity-(\d+)`), KindActivity},
	{regexp.MustCompile(`-(\d{19,20})-`), KindActivity},
	{regexp.MustCompile(`/posts/[^?]*-(\d{19,20})`), KindActivity},
}

var urnPatterns = patterns[:2]

// Normalize extracts the post identifier from a URL, share link, or URN.
// Percent-encoded addresses are decoded and retried when the raw form
// matches nothing.
func Normalize(address string) (ID, error) {
	address = strings.TrimSpace(address)
	if id, ok := match(address, patterns); ok {
		return id, nil
	}
	if decoded, err := url.QueryUnescape(address); err == nil && decoded != address {
		if id, ok := match(decoded, patterns); ok {
			return id, nil
		}
	}
	return ID{}, fmt.Errorf("%w: %q", ErrUnrecognized, address)
}

// Parse accepts only explicit urn:li:activity and urn:li:ugcPost forms.
func Parse(urn string) (ID, error) {
	urn = strings.TrimSpace(urn)
	if id, ok := match(urn, urnPatterns); ok && id.URN() == urn {
		return id, nil
	}
	return ID{}, fmt.Errorf("%w: %q is not a post URN", ErrUnrecognized, urn)
}

func match(s string, ps []pattern) (ID, bool) {
	for _, p := range ps {
		if m := p.re.FindStringSubmatch(s); m != nil {
			return ID{Kind: p.kind, Value: m[1]}, true
		}
	}
	return ID{}, false
}
