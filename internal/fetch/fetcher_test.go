package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html>
<head><title>Licensing</title></head>
<body>
  <nav>Home | About</nav>
  <script>var tracked = true;</script>
  <h1>Licensing   Requirements</h1>
  <p>Apply   through the   online portal.</p>
  <a href="/fees">Fees</a>
  <a href="https://other.example.org/external">External</a>
  <a href="#section">Anchor</a>
  <footer>Copyright</footer>
</body>
</html>`

func TestFetch_ExtractsTextTitleAndLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := New(5 * time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Licensing", doc.Title)
	assert.Contains(t, doc.Text, "Licensing Requirements")
	assert.Contains(t, doc.Text, "Apply through the online portal.")
	assert.NotContains(t, doc.Text, "tracked", "script content is stripped")
	assert.NotContains(t, doc.Text, "Home | About", "nav content is stripped")
	assert.NotContains(t, doc.Text, "Copyright", "footer content is stripped")

	assert.Contains(t, doc.Links, srv.URL+"/fees", "relative links resolve against the page URL")
	assert.Contains(t, doc.Links, "https://other.example.org/external")
	for _, l := range doc.Links {
		assert.NotContains(t, l, "#", "fragments are dropped")
	}
}

func TestFetch_NonHTMLContentIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := New(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetch_ServerErrorIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetch_NetworkErrorIsSkipped(t *testing.T) {
	f := New(time.Second)
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.ErrorIs(t, err, ErrFetch)
}
