// Package report renders discover and batch results as text, JSON, or CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/FranksOps/liaison/internal/pipeline"
)

// Format is an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// Summary counts the outcomes of a batch run.
type Summary struct {
	Total     int `json:"total"`
	Generated int `json:"generated"`
	Posted    int `json:"posted"`
	Failed    int `json:"failed"`
}

// Summarize tallies items.
func Summarize(items []pipeline.Item) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		if it.Comment != "" {
			s.Generated++
		}
		if it.Posted {
			s.Posted++
		}
		if it.Error != "" {
			s.Failed++
		}
	}
	return s
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"clip": func(n int, s string) string {
		s = strings.Join(strings.Fields(s), " ")
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "..."
	},
	"inc": func(i int) int { return i + 1 },
}

var postsTmpl = template.Must(template.New("posts").Funcs(funcs).Parse(
	`{{- range $i, $p := . -}}
{{inc $i}}. {{$p.Author}} {{$p.ID.URN}}
   {{$p.URL}}
   {{clip 160 $p.Text}}
{{else -}}
No posts found
{{end -}}
`))

var batchTmpl = template.Must(template.New("batch").Funcs(funcs).Parse(
	`{{- range $i, $it := .Items -}}
{{inc $i}}. {{$it.Author}} {{$it.ID.URN}}{{if $it.Posted}} [posted]{{end}}
   {{$it.URL}}
   post:    {{clip 120 $it.PostText}}
{{- if $it.Comment}}
   comment: {{$it.Comment}}
{{- end}}
{{- if $it.Error}}
   error:   {{$it.Error}}
{{- end}}
{{end -}}
{{with .Summary}}
Total: {{.Total}}  Generated: {{.Generated}}  Posted: {{.Posted}}  Failed: {{.Failed}}
{{end -}}
`))

// WritePosts renders discovered posts in format f.
func WritePosts(w io.Writer, f Format, posts []pipeline.DiscoveredPost) error {
	switch f {
	case FormatJSON:
		if posts == nil {
			posts = []pipeline.DiscoveredPost{}
		}
		return WriteJSON(w, map[string]any{"posts": posts})
	case FormatCSV:
		rows := make([][]string, 0, len(posts))
		for _, p := range posts {
			rows = append(rows, []string{p.URL, p.ID.URN(), p.Author, p.Text})
		}
		return writeCSV(w, []string{"url", "urn", "author", "text"}, rows)
	default:
		if err := postsTmpl.Execute(w, posts); err != nil {
			return fmt.Errorf("report: render posts: %w", err)
		}
		return nil
	}
}

// WriteItems renders batch items in format f.
func WriteItems(w io.Writer, f Format, items []pipeline.Item) error {
	switch f {
	case FormatJSON:
		if items == nil {
			items = []pipeline.Item{}
		}
		return WriteJSON(w, map[string]any{"items": items, "summary": Summarize(items)})
	case FormatCSV:
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{
				it.URL,
				it.ID.URN(),
				it.Author,
				it.PostText,
				it.Comment,
				strconv.FormatBool(it.Posted),
				it.Error,
			})
		}
		return writeCSV(w, []string{"url", "urn", "author", "post_text", "generated_reply", "posted", "error"}, rows)
	default:
		data := struct {
			Items   []pipeline.Item
			Summary Summary
		}{items, Summarize(items)}
		if err := batchTmpl.Execute(w, data); err != nil {
			return fmt.Errorf("report: render batch: %w", err)
		}
		return nil
	}
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("report: write csv: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("report: write csv: %w", err)
	}
	return nil
}
