// Package schedule pulls plain text out of schedule documents (PDF, HTML,
// plain text) so it can be fed to calendar extraction page by page.
package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	// MaxFetchSize caps downloaded documents.
	MaxFetchSize = 5 << 20
	fetchTimeout = 10 * time.Second
)

// ErrUnsupported is returned for content types Pages cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// FromPDF returns the plain text of each page. Pages without text are
// returned as empty strings so indices line up with the document.
func FromPDF(r io.ReaderAt, size int64) ([]string, error) {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	pages := make([]string, 0, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// blockTags end a line of visible text.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
}

// FromHTML returns the visible text of an HTML document. Script and style
// contents are skipped, table cells are tab separated and block elements
// end a line.
func FromHTML(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		sb   strings.Builder
		skip int
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return collapse(sb.String()), nil
			}
			return "", fmt.Errorf("parsing html: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style":
				if tt == html.StartTagToken {
					skip++
				}
			case tag == "td" || tag == "th":
				sb.WriteByte('\t')
			case blockTags[tag]:
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case (tag == "script" || tag == "style") && skip > 0:
				skip--
			case blockTags[tag]:
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// collapse squeezes whitespace inside each tab-separated cell, drops empty
// cells and blank lines.
func collapse(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		var cells []string
		for _, cell := range strings.Split(line, "\t") {
			if c := strings.Join(strings.Fields(cell), " "); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) > 0 {
			out = append(out, strings.Join(cells, "\t"))
		}
	}
	return strings.Join(out, "\n")
}

// Pages splits a document into extraction units according to its content
// type. PDF yields one entry per page with text; HTML and plain text yield a
// single entry. An empty content type is sniffed.
func Pages(contentType string, body []byte) ([]string, error) {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, contentType)
	}

	var pages []string
	switch {
	case mediaType == "application/pdf":
		all, err := FromPDF(bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return nil, err
		}
		for _, p := range all {
			if p != "" {
				pages = append(pages, p)
			}
		}
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		text, err := FromHTML(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		pages = []string{text}
	case strings.HasPrefix(mediaType, "text/"):
		pages = []string{strings.TrimSpace(string(body))}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mediaType)
	}

	if len(pages) == 0 || (len(pages) == 1 && pages[0] == "") {
		return nil, errors.New("document has no text")
	}
	return pages, nil
}

// Fetch downloads url with a 10 second timeout and returns at most limit
// bytes (MaxFetchSize when limit is zero) plus the response content type.
func Fetch(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, string, error) {
	if limit <= 0 {
		limit = MaxFetchSize
	}
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("url returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading url response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("document exceeds %d bytes", limit)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
