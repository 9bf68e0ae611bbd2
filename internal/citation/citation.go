// Package citation audits the hyperlink citations in a generated summary
// against the evidence the summary was grounded on.
package citation

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/scitrue/internal/model"
)

// Citation is one anchor found in the summary
type Citation struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Extract returns the http(s) anchors in summary in document order, duplicates included
func Extract(summary string) ([]Citation, error) {
	doc, err := html.Parse(strings.NewReader(summary))
	if err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}

	var citations []Citation
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := hrefOf(n); href != "" {
				citations = append(citations, Citation{URL: href, Text: textOf(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return citations, nil
}

func hrefOf(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		href := strings.TrimSpace(attr.Val)
		parsed, err := url.Parse(href)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return ""
		}
		return href
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// canonicalURL compares links case-insensitively on scheme and host and
// ignores a trailing slash and fragment
func canonicalURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

// Audit is the outcome of checking that every evidence link is cited exactly once
type Audit struct {
	Citations  []Citation `json:"citations"`
	Uncited    []string   `json:"uncited,omitempty"`    // evidence links never cited
	Duplicated []string   `json:"duplicated,omitempty"` // evidence links cited more than once
	Unknown    []string   `json:"unknown,omitempty"`    // cited links that are not evidence
}

// Clean reports whether every evidence link was cited exactly once and nothing else was
func (a Audit) Clean() bool {
	return len(a.Uncited) == 0 && len(a.Duplicated) == 0 && len(a.Unknown) == 0
}

// Warnings renders the audit findings as user-facing lines
func (a Audit) Warnings() []string {
	var out []string
	for _, u := range a.Uncited {
		out = append(out, "evidence not cited in summary: "+u)
	}
	for _, u := range a.Duplicated {
		out = append(out, "evidence cited more than once: "+u)
	}
	for _, u := range a.Unknown {
		out = append(out, "summary cites a link outside the evidence: "+u)
	}
	return out
}

// Check audits summary against the evidence items it was generated from
func Check(summary string, evidence []model.EvidenceItem) (Audit, error) {
	citations, err := Extract(summary)
	if err != nil {
		return Audit{}, err
	}

	counts := make(map[string]int, len(citations))
	for _, c := range citations {
		counts[canonicalURL(c.URL)]++
	}

	audit := Audit{Citations: citations}
	known := make(map[string]bool, len(evidence))
	for _, item := range evidence {
		if item.URL == "" {
			continue
		}
		key := canonicalURL(item.URL)
		if known[key] {
			continue
		}
		known[key] = true

		switch n := counts[key]; {
		case n == 0:
			audit.Uncited = append(audit.Uncited, item.URL)
		case n > 1:
			audit.Duplicated = append(audit.Duplicated, item.URL)
		}
	}

	reported := make(map[string]bool)
	for _, c := range citations {
		key := canonicalURL(c.URL)
		if known[key] || reported[key] {
			continue
		}
		reported[key] = true
		audit.Unknown = append(audit.Unknown, c.URL)
	}

	return audit, nil
}

// ToMarkdown rewrites the summary's anchors as Markdown links and drops other
// markup, keeping bold and line breaks
func ToMarkdown(summary string) string {
	var b strings.Builder
	var open []string // hrefs of unclosed anchors, "" for skipped ones

	z := html.NewTokenizer(strings.NewReader(summary))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "a":
				href := hrefOf(&html.Node{Type: html.ElementNode, Data: "a", Attr: tok.Attr})
				open = append(open, href)
				if href != "" {
					b.WriteString("[")
				}
			case "b", "strong":
				b.WriteString("**")
			case "br":
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "a":
				if len(open) == 0 {
					continue
				}
				href := open[len(open)-1]
				open = open[:len(open)-1]
				if href != "" {
					b.WriteString("](" + href + ")")
				}
			case "b", "strong":
				b.WriteString("**")
			}
		}
	}
}
