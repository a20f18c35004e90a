package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/FranksOps/liaison/internal/auth"
	"github.com/FranksOps/liaison/internal/pipeline"
)

const (
	oauthStateCookie = "oauth_state"
	maxRequestBody   = 1 << 20
)

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

type discoverRequest struct {
	Topic    string `json:"topic"`
	MaxPosts int    `json:"max_posts"`
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	req := discoverRequest{Topic: s.deps.DefaultTopic, MaxPosts: s.deps.DefaultMax}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	posts, err := s.deps.Service.Discover(r.Context(), req.Topic, req.MaxPosts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(posts) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"posts": []any{}, "message": "No posts found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) generateAndPost(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SingleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Service.GenerateAndSubmit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"urn":     urnOf(res.ID),
		"comment": res.Comment,
		"result":  res.Receipt,
	})
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	req := pipeline.BatchRequest{Topic: s.deps.DefaultTopic, Max: 5}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.deps.Service.Batch(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(items) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}, "message": "No posts found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type analyzeRequest struct {
	URL string `json:"url"`
}

func (s *Server) analyzePost(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := s.deps.Service.Analyze(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{URN: urnOf(a.ID), Text: a.Text, Author: a.Author, Manual: a.Manual})
}

func (s *Server) generateReplies(w http.ResponseWriter, r *http.Request) {
	req := pipeline.SuggestRequest{Count: 3}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	suggestions, err := s.deps.Service.Suggest(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type postCommentRequest struct {
	URN  string `json:"post_urn"`
	Text string `json:"comment_text"`
}

func (s *Server) postComment(w http.ResponseWriter, r *http.Request) {
	var req postCommentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := s.deps.Service.Submit(r.Context(), req.URN, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": receipt})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if s.deps.OAuth == nil || !s.deps.OAuth.Configured() {
		s.writeError(w, r, errors.New("oauth client is not configured"))
		return
	}
	state := auth.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.deps.OAuth.AuthorizeURL(state), http.StatusTemporaryRedirect)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		s.writeError(w, r, fmt.Errorf("%w: invalid state parameter", errBadRequest))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing code", errBadRequest))
		return
	}

	tok, err := s.deps.OAuth.Exchange(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Tokens.Save(tok); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.deps.Profile.UserInfo(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Tokens.SetMemberURN(info.MemberURN()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("linkedin account connected", "member_urn", info.MemberURN())
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": s.deps.Tokens.Authenticated(r.Context())})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tokens.Clear(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
