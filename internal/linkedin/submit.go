// Package linkedin posts comments to LinkedIn through an ordered list of
// endpoint variants, falling through to the next one on failure.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/liaison/internal/auth"
	"github.com/FranksOps/liaison/internal/metrics"
	"github.com/FranksOps/liaison/internal/postid"
)

// MaxAttemptBody caps how much of a failed response is kept per attempt.
const MaxAttemptBody = 500

// Comment is one comment to post.
type Comment struct {
	Post postid.ID
	// Actor is the member URN posting the comment. Only the official API
	// needs it.
	Actor string
	Text  string
}

// SendFunc performs one endpoint call and returns the raw status and body.
// A non-nil error means no usable response was received.
type SendFunc func(ctx context.Context, c Comment) (status int, body []byte, err error)

// Variant is one way of posting a comment.
type Variant struct {
	Name string
	Send SendFunc
}

// Receipt describes an accepted comment.
type Receipt struct {
	ID         string    `json:"id"`
	Variant    string    `json:"variant"`
	StatusCode int       `json:"status_code"`
	Body       string    `json:"body,omitempty"`
	PostedAt   time.Time `json:"posted_at"`
}

// Attempt records one failed variant.
type Attempt struct {
	Variant    string
	StatusCode int
	Body       string
	Err        error
}

func (a Attempt) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s: %v", a.Variant, a.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", a.Variant, a.StatusCode, a.Body)
}

// SubmissionError is returned when every variant failed.
type SubmissionError struct {
	Attempts []Attempt
}

func (e *SubmissionError) Error() string {
	if len(e.Attempts) == 0 {
		return "linkedin: no submission variants configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return "linkedin: all submission variants failed: " + strings.Join(parts, "; ")
}

func (e *SubmissionError) Unwrap() []error {
	var errs []error
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Poster submits a comment on a post.
type Poster interface {
	Submit(ctx context.Context, id postid.ID, actor, text string) (*Receipt, error)
}

var _ Poster = (*Submitter)(nil)

// Submitter tries its variants in order until one is accepted.
type Submitter struct {
	variants []Variant
	logger   *slog.Logger
	now      func() time.Time
}

// NewSubmitter creates a Submitter over variants.
func NewSubmitter(logger *slog.Logger, variants ...Variant) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{variants: variants, logger: logger, now: time.Now}
}

// Variants returns the variant names in attempt order.
func (s *Submitter) Variants() []string {
	names := make([]string, len(s.variants))
	for i, v := range s.variants {
		names[i] = v.Name
	}
	return names
}

// Submit posts text on id. The first variant answering 200 or 201 wins.
// When every variant is missing credentials the result is
// auth.ErrNotAuthenticated rather than a SubmissionError.
func (s *Submitter) Submit(ctx context.Context, id postid.ID, actor, text string) (*Receipt, error) {
	c := Comment{Post: id, Actor: actor, Text: text}
	attempts := make([]Attempt, 0, len(s.variants))

	for _, v := range s.variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status, body, err := v.Send(ctx, c)
		if errors.Is(err, auth.ErrNotAuthenticated) {
			s.logger.Debug("skipping variant without credentials", "variant", v.Name)
			attempts = append(attempts, Attempt{Variant: v.Name, Err: err})
			continue
		}
		metrics.RecordSubmission(v.Name, status)

		if err == nil && (status == 200 || status == 201) {
			s.logger.Info("comment posted", "variant", v.Name, "post", id.URN(), "status", status)
			return &Receipt{
				ID:         uuid.NewString(),
				Variant:    v.Name,
				StatusCode: status,
				Body:       string(body),
				PostedAt:   s.now().UTC(),
			}, nil
		}

		a := Attempt{Variant: v.Name, StatusCode: status, Body: clip(body), Err: err}
		s.logger.Warn("submission variant failed", "variant", v.Name, "post", id.URN(), "status", status, "err", err)
		attempts = append(attempts, a)
	}

	if allUnauthenticated(attempts) {
		return nil, fmt.Errorf("linkedin: %w", auth.ErrNotAuthenticated)
	}
	return nil, &SubmissionError{Attempts: attempts}
}

func allUnauthenticated(attempts []Attempt) bool {
	if len(attempts) == 0 {
		return false
	}
	for _, a := range attempts {
		if !errors.Is(a.Err, auth.ErrNotAuthenticated) {
			return false
		}
	}
	return true
}

func clip(b []byte) string {
	if len(b) > MaxAttemptBody {
		b = b[:MaxAttemptBody]
	}
	return string(b)
}

// Transport selects which variant families are used.
type Transport string

const (
	TransportOfficial Transport = "official"
	TransportVoyager  Transport = "voyager"
	TransportAuto     Transport = "auto"
)

// ParseTransport validates a transport name. Empty means auto.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TransportAuto, nil
	case TransportOfficial, TransportVoyager, TransportAuto:
		return t, nil
	default:
		return "", fmt.Errorf("linkedin: unknown transport %q", s)
	}
}

// Compose returns the variant list for t. Auto is the official list
// followed by the Voyager list.
func Compose(t Transport, official *Official, voyager *Voyager) []Variant {
	var out []Variant
	if (t == TransportOfficial || t == TransportAuto) && official != nil {
		out = append(out, official.Variants()...)
	}
	if (t == TransportVoyager || t == TransportAuto) && voyager != nil {
		out = append(out, voyager.Variants()...)
	}
	return out
}
