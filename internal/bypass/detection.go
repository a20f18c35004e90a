package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the slice of an HTTP response the detectors look at.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	// FinalURL is the address after redirects, when known.
	FinalURL string
}

// Result reports whether a response was a block, challenge, or login wall.
type Result struct {
	Blocked bool
	Source  string // e.g. "LinkedIn", "Cloudflare", "Akamai", "PerimeterX", "DataDome"
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the standard list of detectors. The LinkedIn
// check runs first because post pages are the hottest path.
func DefaultDetectors() []Detector {
	return []Detector{
		detectLinkedIn,
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// SearchDetectors is DefaultDetectors without the LinkedIn check. Result
// pages for LinkedIn queries link to authwall URLs without being walls.
func SearchDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Analyze runs the response through the detectors in order and stops at the
// first hit.
func Analyze(res *Response, detectors []Detector) Result {
	if res == nil {
		return Result{}
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return Result{Blocked: true, Source: source}
		}
	}
	return Result{}
}

func getHeader(headers http.Header, key string) string {
	if v := headers.Get(key); v != "" {
		return v
	}
	// Headers built by hand may not be canonicalized.
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// linkedInStatusDenied is LinkedIn's non-standard "request denied" status.
const linkedInStatusDenied = 999

var authwallMarkers = [][]byte{
	[]byte("/authwall"),
	[]byte("/checkpoint/challenge"),
	[]byte("/uas/login?session_redirect"),
}

// detectLinkedIn catches the 999 status and the authwall/checkpoint pages
// LinkedIn serves in place of public content.
func detectLinkedIn(res *Response) (bool, string) {
	if res.StatusCode == linkedInStatusDenied {
		return true, "LinkedIn"
	}
	if strings.Contains(res.FinalURL, "/authwall") || strings.Contains(res.FinalURL, "/checkpoint/") {
		return true, "LinkedIn"
	}
	if loc := getHeader(res.Headers, "Location"); strings.Contains(loc, "/authwall") {
		return true, "LinkedIn"
	}
	// Public post pages carry og:description; a wall page without it that
	// points at the login flow is treated as a block.
	if bytes.Contains(res.Body, []byte("og:description")) {
		return false, ""
	}
	for _, m := range authwallMarkers {
		if bytes.Contains(res.Body, m) {
			return true, "LinkedIn"
		}
	}
	return false, ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "cloudflare") {
			return true, "Cloudflare"
		}

		if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
			bytes.Contains(res.Body, []byte("cloudflare-nginx")) ||
			bytes.Contains(res.Body, []byte("cf-turnstile")) ||
			bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "akamai") {
			return true, "Akamai"
		}

		// Generic "Reference #" block page
		if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "datadome") {
			return true, "DataDome"
		}

		if getHeader(res.Headers, "X-DataDome") != "" || getHeader(res.Headers, "X-DataDome-Response") != "" {
			return true, "DataDome"
		}

		if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) || bytes.Contains(res.Body, []byte("datadome")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if getHeader(res.Headers, "X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}

		if bytes.Contains(res.Body, []byte("client.perimeterx.net")) ||
			bytes.Contains(res.Body, []byte("px-captcha")) ||
			bytes.Contains(res.Body, []byte("_pxBlock")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
