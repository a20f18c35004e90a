package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/titanous/json5"
)

var (
	// ErrUnparseable is returned when a provider response is empty after cleanup.
	ErrUnparseable = errors.New("reply: empty provider response")
	// ErrUpstream wraps transport failures and error statuses from a backend.
	ErrUpstream = errors.New("reply: generation backend failed")
)

// DefaultMinLength is the shortest string accepted as a comment.
const DefaultMinLength = 20

// Keys a model might nest its comments under, most likely first.
var commentKeys = []string{"comments", "suggestions", "replies", "comment", "text", "response", "reply"}

// ParseComments normalizes whatever a model returned into a list of comment
// strings. It tries strict JSON, then JSON5 (single quotes, unquoted keys,
// trailing commas), then quoted substrings of at least min characters, and
// finally returns the cleaned text as the only comment. It fails only when
// there is no text at all.
func ParseComments(raw string, min int) ([]string, error) {
	if min <= 0 {
		min = DefaultMinLength
	}

	cleaned := stripFence(raw)
	if cleaned == "" {
		return nil, ErrUnparseable
	}

	if v, ok := decode(cleaned); ok {
		if out := dedupe(collect(v, min)); len(out) > 0 {
			return out, nil
		}
		return []string{cleaned}, nil
	}

	if out := dedupe(quoted(cleaned, '"', min)); len(out) > 0 {
		return out, nil
	}
	if out := dedupe(quoted(cleaned, '\'', min)); len(out) > 0 {
		return out, nil
	}
	return []string{cleaned}, nil
}

// stripFence trims whitespace and a surrounding ```lang ... ``` block.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		s = rest
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func decode(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil && v != nil {
		return v, true
	}
	v = nil
	if err := json5.Unmarshal([]byte(s), &v); err == nil && v != nil {
		return v, true
	}
	return nil, false
}

func collect(v any, min int) []string {
	switch t := v.(type) {
	case string:
		if long(t, min) {
			return []string{t}
		}
		return nil

	case []any:
		var out []string
		for _, item := range t {
			switch it := item.(type) {
			case string:
				if long(it, min) {
					out = append(out, it)
				}
			case map[string]any:
				out = append(out, collect(it, min)...)
			}
		}
		return out

	case map[string]any:
		for _, k := range commentKeys {
			switch val := t[k].(type) {
			case []any:
				return collect(val, min)
			case string:
				if long(val, min) {
					return []string{val}
				}
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			if s, ok := t[k].(string); ok && long(s, min) {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func quoted(s string, quote rune, min int) []string {
	if min > 1000 {
		min = 1000 // regexp repeat limit
	}
	q := regexp.QuoteMeta(string(quote))
	re := regexp.MustCompile(fmt.Sprintf(`%s([^%s]{%d,})%s`, q, q, min, q))
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func long(s string, min int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) > min
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
