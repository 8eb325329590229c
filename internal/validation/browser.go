package validation

import (
	"bytes"
	"context"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"yqhp/arena/pkg/types"
)

// BrowserCheck fetches the worker's page and checks document-level
// accessibility and responsiveness markers.
type BrowserCheck struct {
	timeout time.Duration
	path    string
}

// NewBrowserCheck creates the built-in browser check.
func NewBrowserCheck(timeout time.Duration) *BrowserCheck {
	return &BrowserCheck{timeout: timeout, path: "/"}
}

// Category implements Check.
func (*BrowserCheck) Category() string { return types.CategoryBrowser }

// Run implements Check.
func (b *BrowserCheck) Run(ctx context.Context, t Target) Result {
	var r Result
	resp, err := get(ctx, newClient(b.timeout, 1), "http://"+t.Addr+b.path, b.timeout)
	if err != nil {
		r.addf("page unreachable: %v", err)
		return r
	}
	if !resp.ok() {
		r.addf("page returned status %d", resp.status)
		return r
	}
	return AuditHTML(resp.body)
}

// PageAudit is what AuditHTML found in a document.
type PageAudit struct {
	Title       string
	Lang        string
	Viewport    bool
	Headings    int
	Images      int
	ImagesNoAlt int
	Inputs      int
	Unlabeled   int
}

// AuditHTML scores a document on six checks of equal weight: title, lang,
// viewport meta, image alt text, labeled inputs and at least one heading.
func AuditHTML(body []byte) Result {
	var r Result
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		r.addf("unparseable HTML: %v", err)
		return r
	}
	a := audit(doc)

	checks := []struct {
		ok   bool
		fail string
	}{
		{a.Title != "", "missing <title>"},
		{a.Lang != "", "missing lang attribute on <html>"},
		{a.Viewport, "missing viewport meta"},
		{a.ImagesNoAlt == 0, "images without alt text"},
		{a.Unlabeled == 0, "form inputs without labels"},
		{a.Headings > 0, "no headings"},
	}
	passed := 0
	for _, c := range checks {
		if c.ok {
			passed++
			continue
		}
		r.Findings = append(r.Findings, c.fail)
	}
	if a.ImagesNoAlt > 0 {
		r.addf("%d of %d images lack alt", a.ImagesNoAlt, a.Images)
	}
	if a.Unlabeled > 0 {
		r.addf("%d of %d inputs unlabeled", a.Unlabeled, a.Inputs)
	}
	r.Score = float64(passed) * 100 / float64(len(checks))
	return r
}

func audit(doc *html.Node) PageAudit {
	var a PageAudit
	labelFor := make(map[string]bool)
	var inputs []*html.Node
	wrapped := make(map[*html.Node]bool)

	var walk func(n *html.Node, inLabel bool)
	walk = func(n *html.Node, inLabel bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Html:
				a.Lang = attr(n, "lang")
			case atom.Title:
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					a.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Meta:
				if strings.EqualFold(attr(n, "name"), "viewport") {
					a.Viewport = true
				}
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				a.Headings++
			case atom.Img:
				a.Images++
				if _, ok := attrOK(n, "alt"); !ok {
					a.ImagesNoAlt++
				}
			case atom.Label:
				if f := attr(n, "for"); f != "" {
					labelFor[f] = true
				}
				inLabel = true
			case atom.Input, atom.Select, atom.Textarea:
				if labelable(n) {
					inputs = append(inputs, n)
					if inLabel {
						wrapped[n] = true
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLabel)
		}
	}
	walk(doc, false)

	a.Inputs = len(inputs)
	for _, in := range inputs {
		if wrapped[in] || attr(in, "aria-label") != "" || attr(in, "aria-labelledby") != "" {
			continue
		}
		if id := attr(in, "id"); id != "" && labelFor[id] {
			continue
		}
		a.Unlabeled++
	}
	return a
}

func labelable(n *html.Node) bool {
	if n.DataAtom != atom.Input {
		return true
	}
	switch strings.ToLower(attr(n, "type")) {
	case "hidden", "submit", "button", "reset", "image":
		return false
	}
	return true
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val), true
		}
	}
	return "", false
}
