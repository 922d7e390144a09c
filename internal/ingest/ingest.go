// Package ingest turns put input into storable content. Input is
// either inline text or a source reference (a local path, file:// or
// http(s) URL); sources are fetched and reduced to plain text, and
// every piece of content gets a sha256 hash that drives version
// archiving downstream.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
)

// maxFetchBytes caps how much of a source document is read.
const maxFetchBytes = 4 << 20

// Content is ingested material ready for the store.
type Content struct {
	// ID is the content-addressed id suggested for inline text with
	// no caller-supplied id: "%" plus the first 12 hex chars of the
	// hash. Empty for sourced content.
	ID string

	// Text is the full plain text.
	Text string

	// Summary is the store-ready summary: the text itself when it
	// fits, otherwise a truncation placeholder to be replaced by the
	// summarizer.
	Summary string

	// Hash is the sha256 hex digest of Text.
	Hash string

	// NeedsSummary marks content whose Summary is a placeholder.
	NeedsSummary bool

	// Tags carries provenance tags (_source, _content_type).
	Tags item.Tags
}

// Ingestor fetches and normalizes content.
type Ingestor struct {
	maxSummary int
	client     *http.Client
}

// New creates an Ingestor. maxSummary is the stored-summary cap;
// fetchTimeout bounds one http(s) fetch.
func New(maxSummary int, fetchTimeout time.Duration) *Ingestor {
	return &Ingestor{
		maxSummary: maxSummary,
		client:     &http.Client{Timeout: fetchTimeout},
	}
}

// IsSource reports whether s names a fetchable source rather than
// inline text: an http(s) or file URL, or a path to an existing file.
func IsSource(s string) bool {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "file://") {
		return true
	}
	if strings.ContainsAny(s, "\n") {
		return false
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "~/") {
		info, err := os.Stat(expandHome(s))
		return err == nil && !info.IsDir()
	}
	return false
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Inline ingests literal text. The suggested id is content-addressed
// so the same text always lands on the same document.
func (g *Ingestor) Inline(text string) (*Content, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewInvalidInput("content must not be empty")
	}
	hash := hashText(text)
	c := &Content{
		ID:   "%" + hash[:12],
		Text: text,
		Hash: hash,
		Tags: item.Tags{},
	}
	g.summarize(c)
	return c, nil
}

// FromSource fetches and ingests a source reference.
func (g *Ingestor) FromSource(ctx context.Context, src string) (*Content, error) {
	var raw []byte
	var contentType string
	var err error

	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		raw, contentType, err = g.fetchHTTP(ctx, src)
	case strings.HasPrefix(src, "file://"):
		u, perr := url.Parse(src)
		if perr != nil {
			return nil, errors.NewInvalidInput("bad file URL: " + src)
		}
		raw, contentType, err = readFile(u.Path)
	default:
		raw, contentType, err = readFile(expandHome(src))
	}
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, errors.NewInvalidInput("source is not valid UTF-8 text: " + src)
	}

	text := string(raw)
	if isMarkdown(src, contentType) {
		text = ExtractText(raw)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewInvalidInput("source has no text content: " + src)
	}

	c := &Content{
		Text: text,
		Hash: hashText(text),
		Tags: item.Tags{
			item.TagSource:      src,
			item.TagContentType: contentType,
		},
	}
	g.summarize(c)
	return c, nil
}

// summarize fills Summary: the full text when it fits, otherwise a
// cut at the cap marked for async summarization.
func (g *Ingestor) summarize(c *Content) {
	if len(c.Text) <= g.maxSummary {
		c.Summary = c.Text
		return
	}
	c.Summary = Truncate(c.Text, g.maxSummary)
	c.NeedsSummary = true
}

// Truncate cuts text at max bytes without splitting a rune, trimming
// back to the last line break when one is near the cut.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	truncated := text[:cut]
	if i := strings.LastIndexByte(truncated, '\n'); i > max/2 {
		truncated = truncated[:i]
	}
	return strings.TrimRight(truncated, " \t\n")
}

func (g *Ingestor) fetchHTTP(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", src, nil)
	if err != nil {
		return nil, "", errors.NewInvalidInput("bad URL: " + src)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, "", errors.NewBackendUnavailable("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, "", errors.NewBackendUnavailable("fetch",
			fmt.Errorf("GET %s: %s", src, resp.Status))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", errors.NewBackendUnavailable("fetch", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return raw, strings.TrimSpace(contentType), nil
}

func readFile(path string) ([]byte, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errors.NewNotFound(path)
		}
		return nil, "", errors.NewBackendUnavailable("file", err)
	}
	if len(raw) > maxFetchBytes {
		raw = raw[:maxFetchBytes]
	}
	return raw, contentTypeForPath(path), nil
}

func contentTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	default:
		return "text/plain"
	}
}

func isMarkdown(src, contentType string) bool {
	if contentType == "text/markdown" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(src))
	return ext == ".md" || ext == ".markdown"
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashText returns the sha256 hex digest used for content addressing.
func HashText(text string) string {
	return hashText(text)
}

// ExtractText reduces markdown to plain text by walking the parsed
// AST and collecting text segments, one line per block.
func ExtractText(source []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch t := n.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.AutoLink:
				buf.Write(t.URL(source))
			}
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.FencedCodeBlock); ok {
			writeLines(&buf, n, source)
		}
		if _, ok := n.(*ast.CodeBlock); ok {
			writeLines(&buf, n, source)
		}
		if n.Type() == ast.TypeBlock && buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

func writeLines(buf *bytes.Buffer, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}
