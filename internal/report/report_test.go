package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/FranksOps/liaison/internal/pipeline"
	"github.com/FranksOps/liaison/internal/postid"
)

func sampleItems() []pipeline.Item {
	return []pipeline.Item{
		{
			URL:      "https://www.linkedin.com/posts/a-activity-1-x",
			ID:       postid.ID{Kind: postid.KindActivity, Value: "1"},
			Author:   "Alice",
			PostText: "Shipping Go at scale",
			Comment:  "Great lessons here, thanks for sharing.",
			Posted:   true,
		},
		{
			URL:      "https://www.linkedin.com/posts/b-activity-2-y",
			ID:       postid.ID{Kind: postid.KindActivity, Value: "2"},
			Author:   "Bob",
			PostText: "Hiring, with, commas",
			Comment:  "Congrats on the growth.",
			Error:    "linkedin: all submission variants failed",
		},
		{
			URL:    "https://www.linkedin.com/posts/c-activity-3-z",
			ID:     postid.ID{Kind: postid.KindActivity, Value: "3"},
			Author: "Carol",
			Error:  "reply: generation backend failed",
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleItems())
	want := Summary{Total: 3, Generated: 2, Posted: 1, Failed: 2}
	if s != want {
		t.Errorf("Summarize = %+v, want %+v", s, want)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "csv": FormatCSV, "text": FormatText} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("html"); err == nil {
		t.Error("expected error for html")
	}
}

func TestWriteItems_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, FormatText, sampleItems()); err != nil {
		t.Fatalf("WriteItems: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"1. Alice urn:li:activity:1 [posted]",
		"comment: Great lessons here",
		"3. Carol urn:li:activity:3",
		"error:   reply: generation backend failed",
		"Total: 3  Generated: 2  Posted: 1  Failed: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "2. Bob urn:li:activity:2 [posted]") {
		t.Error("failed item rendered as posted")
	}
}

func TestWriteItems_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, FormatCSV, sampleItems()); err != nil {
		t.Fatalf("WriteItems: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv back: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	if records[0][4] != "generated_reply" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[2][3] != "Hiring, with, commas" || records[2][5] != "false" {
		t.Errorf("unexpected row: %v", records[2])
	}
}

func TestWriteItems_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, FormatJSON, nil); err != nil {
		t.Fatalf("WriteItems: %v", err)
	}
	var got struct {
		Items   []pipeline.Item `json:"items"`
		Summary Summary         `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Items == nil || len(got.Items) != 0 {
		t.Errorf("expected empty items array, got %v", got.Items)
	}
	if !strings.Contains(buf.String(), `"items": []`) {
		t.Errorf("expected explicit empty list:\n%s", buf.String())
	}
}

func TestWritePosts(t *testing.T) {
	posts := []pipeline.DiscoveredPost{{
		URL:    "https://www.linkedin.com/posts/a-activity-1-x",
		ID:     postid.ID{Kind: postid.KindActivity, Value: "1"},
		Author: "Alice",
		Text:   strings.Repeat("long text ", 40),
	}}

	var buf bytes.Buffer
	if err := WritePosts(&buf, FormatText, posts); err != nil {
		t.Fatalf("WritePosts: %v", err)
	}
	if !strings.Contains(buf.String(), "1. Alice urn:li:activity:1") || !strings.Contains(buf.String(), "...") {
		t.Errorf("unexpected text output:\n%s", buf.String())
	}

	buf.Reset()
	if err := WritePosts(&buf, FormatText, nil); err != nil {
		t.Fatalf("WritePosts: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No posts found" {
		t.Errorf("unexpected empty output: %q", buf.String())
	}

	buf.Reset()
	if err := WritePosts(&buf, FormatCSV, posts); err != nil {
		t.Fatalf("WritePosts: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "url,urn,author,text\n") {
		t.Errorf("unexpected csv header: %q", buf.String())
	}
}
