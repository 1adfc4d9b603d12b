package markup

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ErrEntity marks a DTD that could not be resolved.
var ErrEntity = errors.New("entity resolution failed")

// maxDTDDepth bounds how many external parameter entities are followed from one doctype.
const maxDTDDepth = 4

var (
	doctypePattern = regexp.MustCompile(
		`(?s)^DOCTYPE\s+[^\s\[>]+\s+(?:PUBLIC\s+("[^"]*"|'[^']*')\s+("[^"]*"|'[^']*')|SYSTEM\s+("[^"]*"|'[^']*'))`)
	generalEntityPattern = regexp.MustCompile(
		`<!ENTITY\s+([^\s%"']+)\s+("[^"]*"|'[^']*')\s*>`)
	externalParamPattern = regexp.MustCompile(
		`<!ENTITY\s+%\s+([^\s"']+)\s+(?:PUBLIC\s+("[^"]*"|'[^']*')\s+("[^"]*"|'[^']*')|SYSTEM\s+("[^"]*"|'[^']*'))\s*>`)
	dtdCommentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
)

var predefinedEntities = map[string]struct{}{
	"lt": {}, "gt": {}, "amp": {}, "apos": {}, "quot": {},
}

// XMLParser decodes well-formed XML/XHTML. A DOCTYPE with an external id is resolved
// through the entity resolver so the DTD's named entities decode.
type XMLParser struct {
	resolver EntityResolver
}

// NewXMLParser returns a strict parser. A nil resolver leaves external DTDs unread.
func NewXMLParser(resolver EntityResolver) *XMLParser {
	return &XMLParser{resolver: resolver}
}

// Parse emits every start element in r.
func (p *XMLParser) Parse(ctx context.Context, r io.Reader, fn StartElementFunc) error {
	d := xml.NewDecoder(r)
	d.Strict = true
	// Input is already decoded to UTF-8 so declared encodings are ignored.
	d.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.Directive:
			entities, err := p.doctypeEntities(ctx, string(t))
			if err != nil {
				return err
			}
			if len(entities) > 0 {
				d.Entity = entities
			}
		case xml.StartElement:
			if err := ctx.Err(); err != nil {
				return err
			}
			attrs := make([]Attr, 0, len(t.Attr))
			for _, a := range t.Attr {
				attrs = append(attrs, Attr{Key: a.Name.Local, Val: a.Value})
			}
			fn(strings.ToLower(t.Name.Local), attrs)
		}
	}
}

func (p *XMLParser) doctypeEntities(ctx context.Context, directive string) (map[string]string, error) {
	m := doctypePattern.FindStringSubmatch(strings.TrimSpace(directive))
	if m == nil {
		return nil, nil
	}
	entities := make(map[string]string)
	// Internal subset declarations.
	collectGeneralEntities(directive, entities)

	if p.resolver == nil {
		return entities, nil
	}
	publicID, systemID := unquote(m[1]), unquote(m[2])
	if m[3] != "" {
		publicID, systemID = "", unquote(m[3])
	}
	if err := p.loadDTD(ctx, publicID, systemID, entities, 0); err != nil {
		return nil, err
	}
	return entities, nil
}

func (p *XMLParser) loadDTD(ctx context.Context, publicID, systemID string, entities map[string]string, depth int) error {
	if depth > maxDTDDepth {
		return nil
	}
	data, err := p.resolver.Resolve(ctx, publicID, systemID)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEntity, systemID, err)
	}
	dtd := dtdCommentPattern.ReplaceAllString(string(data), "")
	collectGeneralEntities(dtd, entities)

	for _, m := range externalParamPattern.FindAllStringSubmatch(dtd, -1) {
		if !strings.Contains(dtd, "%"+m[1]+";") {
			continue
		}
		pub, sys := unquote(m[2]), unquote(m[3])
		if m[4] != "" {
			pub, sys = "", unquote(m[4])
		}
		if err := p.loadDTD(ctx, pub, sys, entities, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func collectGeneralEntities(dtd string, entities map[string]string) {
	for _, m := range generalEntityPattern.FindAllStringSubmatch(dtd, -1) {
		name := m[1]
		if _, ok := predefinedEntities[name]; ok {
			continue
		}
		if _, ok := entities[name]; ok {
			continue
		}
		entities[name] = html.UnescapeString(unquote(m[2]))
	}
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
