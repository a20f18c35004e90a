package serp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPosts_DedupeAndOrder(t *testing.T) {
	markup := `<html><body>
<ol>
  <li><div class="result">
    <a href="https://www.linkedin.com/posts/jane-doe_golang-concurrency-activity-7200000000000000001-AbCd">Jane on Go concurrency</a>
    <p>Channels are   not
    always the answer.</p>
  </div></li>
  <li><article>
    <a href="https://linkedin.com/posts/bob_rust-activity-7200000000000000002-XyZ1">Bob on Rust</a>
  </article></li>
  <li><div>
    <a href="https://www.linkedin.com/posts/jane-doe_golang-concurrency-activity-7200000000000000001-AbCd?utm=x">dup</a>
  </div></li>
</ol>
</body></html>`

	posts := ExtractPosts([]byte(markup))
	require.Len(t, posts, 2)

	assert.Equal(t, "https://www.linkedin.com/posts/jane-doe_golang-concurrency-activity-7200000000000000001-AbCd", posts[0].URL)
	assert.Equal(t, "Jane on Go concurrency", posts[0].Title)
	assert.Equal(t, "Jane on Go concurrency Channels are not always the answer.", posts[0].Snippet)

	assert.Equal(t, "https://www.linkedin.com/posts/bob_rust-activity-7200000000000000002-XyZ1", posts[1].URL)
	assert.Equal(t, "Bob on Rust", posts[1].Title)
}

func TestExtractPosts_EncodedRedirects(t *testing.T) {
	markup := `<div><a href="https://r.search.yahoo.com/RU=https%3A%2F%2Fwww.linkedin.com%2Fposts%2Fann_ai-activity-7300000000000000003-Qw9%2F/RK=2">Ann on AI</a></div>`

	posts := ExtractPosts([]byte(markup))
	require.Len(t, posts, 1)
	assert.Equal(t, "https://www.linkedin.com/posts/ann_ai-activity-7300000000000000003-Qw9", posts[0].URL)
	assert.Equal(t, "Ann on AI", posts[0].Title)
}

func TestExtractPosts_RawBeforeUnescaped(t *testing.T) {
	markup := `<a href="/x?u=https%3A%2F%2Fwww.linkedin.com%2Fposts%2Fa_b-activity-1-first">one</a>
<a href="https://www.linkedin.com/posts/c_d-activity-2-second">two</a> 100%`

	posts := ExtractPosts([]byte(markup))
	require.Len(t, posts, 2)
	assert.Contains(t, posts[0].URL, "activity-2-")
	assert.Contains(t, posts[1].URL, "activity-1-")
}

func TestExtractPosts_SnippetTruncated(t *testing.T) {
	long := strings.Repeat("é", 500)
	markup := `<div><a href="https://www.linkedin.com/posts/a_b-activity-9-z">t</a>` + long + `</div>`

	posts := ExtractPosts([]byte(markup))
	require.Len(t, posts, 1)
	assert.Equal(t, 300, len([]rune(posts[0].Snippet)))
}

func TestExtractPosts_NoMatches(t *testing.T) {
	assert.Empty(t, ExtractPosts([]byte(`<html><a href="https://www.linkedin.com/in/jane">profile</a></html>`)))
	assert.Empty(t, ExtractPosts(nil))
}

func TestPercentUnescape(t *testing.T) {
	assert.Equal(t, "a/b 100%", percentUnescape("a%2Fb 100%"))
	assert.Equal(t, "%zz", percentUnescape("%zz"))
	assert.Equal(t, "plain", percentUnescape("plain"))
}
