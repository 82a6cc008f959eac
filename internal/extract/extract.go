// Package extract turns imported documents (function sheets, event pages,
// pasted notes) into plain text for downstream event extraction.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	KindPDF  = "pdf"
	KindHTML = "html"
	KindText = "text"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// Kind sniffs the document format from its content, declared content type
// and file name. Unknown content falls through to plain text.
func Kind(content []byte, contentType, name string) string {
	if bytes.HasPrefix(content, []byte("%PDF")) || strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return KindPDF
	}
	if strings.Contains(contentType, "text/html") {
		return KindHTML
	}
	head := strings.ToLower(string(bytes.TrimSpace(content[:min(len(content), 256)])))
	if strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") {
		return KindHTML
	}
	return KindText
}

// Text extracts readable text from a document. PDF and HTML content is
// unwrapped to plain text; anything else is returned verbatim.
func Text(content []byte, contentType, name string) (string, error) {
	switch Kind(content, contentType, name) {
	case KindPDF:
		return pdfText(content)
	case KindHTML:
		return htmlText(content)
	default:
		return string(content), nil
	}
}

func pdfText(content []byte) (text string, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return collapse(sb.String()), nil
}

func htmlText(content []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg":
				return
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return collapse(sb.String()), nil
}

// collapse squeezes runs of blank lines and spaces left over by extraction.
func collapse(s string) string {
	s = multiNewline.ReplaceAllString(s, "\n\n")
	s = multiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
