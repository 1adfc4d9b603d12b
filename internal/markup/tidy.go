package markup

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// XHTML 1.0 Transitional identifiers written into tidied documents.
const (
	XHTMLTransitionalPublicID = "-//W3C//DTD XHTML 1.0 Transitional//EN"
	XHTMLTransitionalSystemID = "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd"
)

var xmlNamePattern = regexp.MustCompile(`^[A-Za-z_:][A-Za-z0-9_.:-]*$`)

// rawTextElements are rendered unescaped by html.Render and cannot survive an XML parse.
var rawTextElements = map[atom.Atom]struct{}{
	atom.Script:    {},
	atom.Style:     {},
	atom.Noscript:  {},
	atom.Noembed:   {},
	atom.Noframes:  {},
	atom.Iframe:    {},
	atom.Xmp:       {},
	atom.Plaintext: {},
}

// Tidy rewrites arbitrary HTML as well-formed XHTML with the XHTML Transitional doctype.
// Raw-text element bodies and comments are dropped and attributes that are not valid XML
// names are removed so the output can go through XMLParser.
func Tidy(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("%w: tidy: %w", ErrMalformed, err)
	}
	setXHTMLDoctype(doc)
	clean(doc)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return "", fmt.Errorf("%w: tidy render: %w", ErrMalformed, err)
	}
	return b.String(), nil
}

func setXHTMLDoctype(doc *html.Node) {
	attrs := []html.Attribute{
		{Key: "public", Val: XHTMLTransitionalPublicID},
		{Key: "system", Val: XHTMLTransitionalSystemID},
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.DoctypeNode {
			c.Data = "html"
			c.Attr = attrs
			return
		}
	}
	doctype := &html.Node{Type: html.DoctypeNode, Data: "html", Attr: attrs}
	doc.InsertBefore(doctype, doc.FirstChild)
}

func clean(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.TextNode:
			if _, raw := rawTextElements[n.DataAtom]; raw && n.Type == html.ElementNode {
				n.RemoveChild(c)
			}
		case html.ElementNode:
			c.Attr = cleanAttrs(c.Attr)
			clean(c)
		}
		c = next
	}
}

func cleanAttrs(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	seen := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		if !xmlNamePattern.MatchString(key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
