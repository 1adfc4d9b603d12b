package markup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// HTMLParser walks a document with the x/net/html tokenizer. It accepts anything a
// browser would and never consults a DTD.
type HTMLParser struct{}

// NewHTMLParser returns a lenient HTML parser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Parse emits every start and self-closing tag in r.
func (p *HTMLParser) Parse(ctx context.Context, r io.Reader, fn StartElementFunc) error {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			if err := ctx.Err(); err != nil {
				return err
			}
			name, hasAttr := z.TagName()
			var attrs []Attr
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				attrs = append(attrs, Attr{Key: string(key), Val: string(val)})
			}
			fn(string(name), attrs)
		}
	}
}
