package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/FranksOps/liaison/internal/auth"
)

// TokenSource yields a bearer token for the official API.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
}

// OfficialConfig configures the official REST client.
type OfficialConfig struct {
	BaseURL    string
	APIVersion string
	Tokens     TokenSource
	Timeout    time.Duration
}

// Official is a client for api.linkedin.com.
type Official struct {
	http   *resty.Client
	tokens TokenSource
}

// NewOfficial creates an Official client.
func NewOfficial(cfg OfficialConfig) *Official {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.linkedin.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "202401"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("LinkedIn-Version", cfg.APIVersion).
		SetHeader("X-Restli-Protocol-Version", "2.0.0").
		SetHeader("Content-Type", "application/json")
	return &Official{http: client, tokens: cfg.Tokens}
}

func (o *Official) request(ctx context.Context) (*resty.Request, error) {
	if o.tokens == nil {
		return nil, auth.ErrNotAuthenticated
	}
	token, err := o.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return o.http.R().SetContext(ctx).SetAuthToken(token), nil
}

// Variants returns the official REST variants, newest API first.
func (o *Official) Variants() []Variant {
	return []Variant{
		{Name: "rest-social-actions", Send: o.socialActions("/rest")},
		{Name: "v2-social-actions", Send: o.socialActions("/v2")},
	}
}

func (o *Official) socialActions(prefix string) SendFunc {
	return func(ctx context.Context, c Comment) (int, []byte, error) {
		if c.Actor == "" {
			return 0, nil, fmt.Errorf("%w: no member urn", auth.ErrNotAuthenticated)
		}
		req, err := o.request(ctx)
		if err != nil {
			return 0, nil, err
		}
		urn := c.Post.URN()
		res, err := req.
			SetBody(map[string]any{
				"actor":   c.Actor,
				"object":  urn,
				"message": map[string]string{"text": c.Text},
			}).
			Post(prefix + "/socialActions/" + url.QueryEscape(urn) + "/comments")
		if err != nil {
			return 0, nil, err
		}
		return res.StatusCode(), res.Body(), nil
	}
}

// UserInfo is the OpenID userinfo payload.
type UserInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// MemberURN returns urn:li:person:<sub>.
func (u *UserInfo) MemberURN() string {
	return "urn:li:person:" + u.Sub
}

// UserInfo fetches the authenticated member's profile.
func (o *Official) UserInfo(ctx context.Context) (*UserInfo, error) {
	req, err := o.request(ctx)
	if err != nil {
		return nil, err
	}
	var info UserInfo
	res, err := req.SetResult(&info).Get("/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("linkedin: userinfo: %w", err)
	}
	if res.IsError() {
		return nil, statusErr("userinfo", res)
	}
	if info.Sub == "" {
		return nil, errors.New("linkedin: userinfo returned no subject")
	}
	return &info, nil
}

// Post is the subset of a post the pipeline uses.
type Post struct {
	URN    string
	Author string
	Text   string
}

// GetPost fetches a post by URN.
func (o *Official) GetPost(ctx context.Context, urn string) (*Post, error) {
	req, err := o.request(ctx)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Author          string `json:"author"`
		Commentary      string `json:"commentary"`
		SpecificContent struct {
			Share struct {
				ShareCommentary struct {
					Text string `json:"text"`
				} `json:"shareCommentary"`
			} `json:"com.linkedin.ugc.ShareContent"`
		} `json:"specificContent"`
	}
	res, err := req.SetResult(&raw).Get("/rest/posts/" + url.QueryEscape(urn))
	if err != nil {
		return nil, fmt.Errorf("linkedin: get post: %w", err)
	}
	if res.IsError() {
		return nil, statusErr("get post", res)
	}
	text := raw.Commentary
	if text == "" {
		text = raw.SpecificContent.Share.ShareCommentary.Text
	}
	return &Post{URN: urn, Author: raw.Author, Text: text}, nil
}

func statusErr(op string, res *resty.Response) error {
	return fmt.Errorf("linkedin: %s returned status %d: %s", op, res.StatusCode(), clip(res.Body()))
}
