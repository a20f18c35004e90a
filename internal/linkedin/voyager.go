package linkedin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/FranksOps/liaison/internal/auth"
)

// VoyagerConfig configures the web API client. LiAt and JSessionID are the
// browser session cookies.
type VoyagerConfig struct {
	BaseURL    string
	LiAt       string
	JSessionID string
	UserAgent  string
	Timeout    time.Duration
}

// Voyager is a client for LinkedIn's internal web API.
type Voyager struct {
	http       *resty.Client
	liAt       string
	jSessionID string
}

// NewVoyager creates a Voyager client.
func NewVoyager(cfg VoyagerConfig) *Voyager {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.linkedin.com/voyager/api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/vnd.linkedin.normalized+json+2.1").
		SetHeader("X-Restli-Protocol-Version", "2.0.0").
		SetHeader("X-Li-Lang", "en_US")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Voyager{http: client, liAt: cfg.LiAt, jSessionID: cfg.JSessionID}
}

// Configured reports whether both session cookies are set.
func (v *Voyager) Configured() bool {
	return v.liAt != "" && v.jSessionID != ""
}

func (v *Voyager) request(ctx context.Context) (*resty.Request, error) {
	if !v.Configured() {
		return nil, fmt.Errorf("%w: voyager session cookies not set", auth.ErrNotAuthenticated)
	}
	return v.http.R().
		SetContext(ctx).
		SetCookie(&http.Cookie{Name: "li_at", Value: v.liAt}).
		SetCookie(&http.Cookie{Name: "JSESSIONID", Value: v.jSessionID}).
		SetHeader("Csrf-Token", strings.Trim(v.jSessionID, `"`)), nil
}

// Variants returns the Voyager payload variants in attempt order.
func (v *Voyager) Variants() []Variant {
	return []Variant{
		{Name: "voyager-social-comment", Send: v.send("/feed/comments", socialCommentBody)},
		{Name: "voyager-thread-urn", Send: v.send("/feed/comments", threadURNBody)},
		{Name: "voyager-dash", Send: v.send("/voyagerSocialDashComments?action=create", dashBody)},
	}
}

func (v *Voyager) send(path string, body func(Comment) map[string]any) SendFunc {
	return func(ctx context.Context, c Comment) (int, []byte, error) {
		req, err := v.request(ctx)
		if err != nil {
			return 0, nil, err
		}
		res, err := req.SetBody(body(c)).Post(path)
		if err != nil {
			return 0, nil, err
		}
		return res.StatusCode(), res.Body(), nil
	}
}

func commentary(text string) map[string]any {
	return map[string]any{"text": text, "attributesV2": []any{}}
}

func socialCommentBody(c Comment) map[string]any {
	return map[string]any{
		"commentary": commentary(c.Text),
		"parentUrn":  c.Post.ActivityURN(),
		"$type":      "com.linkedin.voyager.feed.shared.SocialComment",
	}
}

func threadURNBody(c Comment) map[string]any {
	return map[string]any{
		"threadUrn":  fmt.Sprintf("urn:li:fsd_update:(%s,FEED_DETAIL,EMPTY,DEFAULT,false)", c.Post.ActivityURN()),
		"commentary": commentary(c.Text),
	}
}

func dashBody(c Comment) map[string]any {
	return map[string]any{
		"threadUrn": c.Post.ActivityURN(),
		"text":      c.Text,
	}
}
