package runner

import (
	"bytes"
	"context"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"

	"canvasmith/internal/domain"
)

// IsHTMLPath reports whether p names an HTML document.
func IsHTMLPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

// Placer decides where a new page lands on the canvas. Returning nil lets
// the canvas place it.
type Placer func(sessionID, pagePath string) *domain.CanvasPosition

// PageOption configures a PageDeriver.
type PageOption func(*PageDeriver)

// WithPreviewRate throttles intermediate page forwards while content is
// still streaming. Final forwards are never throttled.
func WithPreviewRate(limit rate.Limit, burst int) PageOption {
	return func(d *PageDeriver) { d.limiter = rate.NewLimiter(limit, burst) }
}

// WithPlacer sets the canvas placement collaborator.
func WithPlacer(p Placer) PageOption {
	return func(d *PageDeriver) { d.placer = p }
}

// PageDeriver materializes HTML file writes into canvas pages. Preview IDs
// are remembered per session and path for the deriver's lifetime and never
// pruned, so a deriver belongs to one engine.
type PageDeriver struct {
	sink    domain.PageSink
	limiter *rate.Limiter
	placer  Placer

	mu       sync.Mutex
	previews map[string]string // session/path -> preview ID
}

// NewPageDeriver creates a deriver forwarding pages to sink.
func NewPageDeriver(sink domain.PageSink, opts ...PageOption) *PageDeriver {
	d := &PageDeriver{
		sink:     sink,
		previews: make(map[string]string),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Derive builds a page from an applied HTML file and forwards it to the sink.
// It returns nil without error when an intermediate forward was throttled.
func (d *PageDeriver) Derive(ctx context.Context, sessionID string, f *domain.AppliedFile, final bool) (*domain.Page, error) {
	if !final && d.limiter != nil && !d.limiter.Allow() {
		return nil, nil
	}

	seg := extractSegments(f.Content)
	page := domain.Page{
		Name:      pageName(f.Path),
		Path:      f.Path,
		HTMLBody:  seg.body,
		CSSBody:   seg.css,
		JSBody:    seg.js,
		PreviewID: d.previewID(sessionID, f.Path),
		Final:     final,
	}
	if d.placer != nil {
		page.Position = d.placer(sessionID, f.Path)
	}

	if err := d.sink.UpsertPage(ctx, sessionID, page); err != nil {
		return nil, domain.WrapOp("PageDeriver.Derive", err)
	}
	return &page, nil
}

// previewID returns a handle that stays stable across streaming updates of
// the same page.
func (d *PageDeriver) previewID(sessionID, p string) string {
	key := sessionID + "\x00" + p
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.previews[key]; ok {
		return id
	}
	id := uuid.NewString()
	d.previews[key] = id
	return id
}

func pageName(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

type segments struct {
	body string
	css  string
	js   string
}

// extractSegments splits an HTML document into its body markup and its
// inline style and script text. Partial documents are handled; anything
// after the last complete token is dropped. Without a <body> element the
// whole document, minus head-only elements, is the body.
func extractSegments(doc string) segments {
	var (
		body, whole, css, js bytes.Buffer
		sawBody, inBody      bool
		skip                 atom.Atom // style or inline script being consumed
		keepScript           bool
		headDepth            int
	)

	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := append([]byte(nil), z.Raw()...)
		tok := z.Token()

		if skip != 0 {
			switch {
			case tt == html.TextToken && skip == atom.Style:
				appendSegment(&css, tok.Data)
			case tt == html.TextToken && skip == atom.Script:
				appendSegment(&js, tok.Data)
			case tt == html.EndTagToken && tok.DataAtom == skip:
				skip = 0
			}
			continue
		}

		switch tt {
		case html.StartTagToken:
			switch tok.DataAtom {
			case atom.Style:
				skip = atom.Style
				continue
			case atom.Script:
				keepScript = hasAttr(tok, "src")
				if !keepScript {
					skip = atom.Script
					continue
				}
			case atom.Body:
				sawBody, inBody = true, true
				continue
			case atom.Html:
				continue
			case atom.Head:
				headDepth++
				continue
			}
		case html.EndTagToken:
			switch tok.DataAtom {
			case atom.Body:
				inBody = false
				continue
			case atom.Html:
				continue
			case atom.Head:
				if headDepth > 0 {
					headDepth--
				}
				continue
			}
		case html.DoctypeToken:
			continue
		}

		if headDepth > 0 {
			continue
		}
		if inBody {
			body.Write(raw)
		}
		if !sawBody {
			whole.Write(raw)
		}
	}

	out := segments{
		body: strings.TrimSpace(body.String()),
		css:  strings.TrimSpace(css.String()),
		js:   strings.TrimSpace(js.String()),
	}
	if !sawBody {
		out.body = strings.TrimSpace(whole.String())
	}
	return out
}

func appendSegment(buf *bytes.Buffer, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if buf.Len() > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString(text)
}

func hasAttr(tok html.Token, name string) bool {
	for _, a := range tok.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}
