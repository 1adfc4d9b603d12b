package markup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type element struct {
	name  string
	attrs []Attr
}

func parseAll(t *testing.T, parse func(context.Context, string, StartElementFunc) error, doc string) ([]element, error) {
	t.Helper()
	var got []element
	err := parse(context.Background(), doc, func(name string, attrs []Attr) {
		got = append(got, element{name: name, attrs: attrs})
	})
	return got, err
}

func htmlParse(ctx context.Context, doc string, fn StartElementFunc) error {
	return NewHTMLParser().Parse(ctx, strings.NewReader(doc), fn)
}

type stubResolver struct {
	docs  map[string]string
	calls []string
}

func (s *stubResolver) Resolve(_ context.Context, publicID, systemID string) ([]byte, error) {
	s.calls = append(s.calls, systemID)
	doc, ok := s.docs[systemID]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(doc), nil
}

func TestHTMLParserEmitsStartTags(t *testing.T) {
	t.Parallel()

	doc := `<html><body><A HREF="/a">x</A><img src="i.png"/><a href='b'>y</a></body></html>`
	got, err := parseAll(t, htmlParse, doc)
	require.NoError(t, err)

	var names []string
	for _, e := range got {
		names = append(names, e.name)
	}
	require.Equal(t, []string{"html", "body", "a", "img", "a"}, names)

	href, ok := Lookup(got[2].attrs, "href")
	require.True(t, ok)
	require.Equal(t, "/a", href)
	_, ok = Lookup(got[3].attrs, "href")
	require.False(t, ok)
}

func TestHTMLParserHonorsCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewHTMLParser().Parse(ctx, strings.NewReader("<a href='x'></a>"), func(string, []Attr) {})
	require.ErrorIs(t, err, context.Canceled)
}

func TestXMLParserResolvesDTDEntities(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{docs: map[string]string{
		XHTMLTransitionalSystemID: `<!-- entities -->
<!ENTITY % HTMLlat1 PUBLIC "-//W3C//ENTITIES Latin 1 for XHTML//EN" "lat1.ent">
%HTMLlat1;
<!ENTITY copy "&#169;">`,
		"lat1.ent": `<!ENTITY nbsp "&#160;">`,
	}}
	doc := `<?xml version="1.0" encoding="ISO-8859-1"?>
<!DOCTYPE html PUBLIC "` + XHTMLTransitionalPublicID + `" "` + XHTMLTransitionalSystemID + `">
<html><body><p title="a&nbsp;b">&copy; 2024</p><A href="/x">x</A></body></html>`

	var names []string
	var title string
	err := NewXMLParser(resolver).Parse(context.Background(), strings.NewReader(doc), func(name string, attrs []Attr) {
		names = append(names, name)
		if name == "p" {
			title, _ = Lookup(attrs, "title")
		}
	})
	require.NoError(t, err)
	require.Equal(t, []string{"html", "body", "p", "a"}, names)
	require.Equal(t, "a b", title)
	require.Equal(t, []string{XHTMLTransitionalSystemID, "lat1.ent"}, resolver.calls)
}

func TestXMLParserUnresolvableDTD(t *testing.T) {
	t.Parallel()

	doc := `<!DOCTYPE html SYSTEM "missing.dtd"><html/>`
	err := NewXMLParser(&stubResolver{}).Parse(context.Background(), strings.NewReader(doc), func(string, []Attr) {})
	require.ErrorIs(t, err, ErrEntity)
}

func TestXMLParserRejectsMalformed(t *testing.T) {
	t.Parallel()

	err := NewXMLParser(nil).Parse(context.Background(), strings.NewReader("<html><body></html>"), func(string, []Attr) {})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestXMLParserUnknownEntityIsMalformed(t *testing.T) {
	t.Parallel()

	err := NewXMLParser(nil).Parse(context.Background(), strings.NewReader("<p>&nbsp;</p>"), func(string, []Attr) {})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestTidyProducesParsableXHTML(t *testing.T) {
	t.Parallel()

	src := `<html><head><script>if (a < b && c) {}</script><!-- note --></head>
<body><p class=x class=y 2bad="1">one<br>two<a href="/next">next</a></body>`
	out, err := Tidy(src)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, `<!DOCTYPE html PUBLIC "`+XHTMLTransitionalPublicID+`"`), out)
	require.NotContains(t, out, "note")
	require.NotContains(t, out, "a < b")

	resolver := &stubResolver{docs: map[string]string{XHTMLTransitionalSystemID: `<!ENTITY nbsp "&#160;">`}}
	var hrefs []string
	err = NewXMLParser(resolver).Parse(context.Background(), strings.NewReader(out), func(name string, attrs []Attr) {
		if href, ok := Lookup(attrs, "href"); ok && name == "a" {
			hrefs = append(hrefs, href)
		}
	})
	require.NoError(t, err)
	require.Equal(t, []string{"/next"}, hrefs)
}

func TestTidyReplacesExistingDoctype(t *testing.T) {
	t.Parallel()

	out, err := Tidy("<!DOCTYPE html><html><body>hi</body></html>")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "<!DOCTYPE"))
	require.Contains(t, out, XHTMLTransitionalSystemID)
}

var longHead = "<html><head><title>" + strings.Repeat("x", 1100) + "</title></head><body>"

func TestDecodeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        string
	}{
		{name: "utf8 default", body: []byte("caf\xc3\xa9"), contentType: "text/html", want: "café"},
		{name: "header latin1", body: []byte("caf\xe9"), contentType: "text/plain; charset=ISO-8859-1", want: "café"},
		{name: "meta prescan", body: []byte(`<meta charset="iso-8859-1"><p>caf` + "\xe9"), contentType: "text/html", want: `<meta charset="iso-8859-1"><p>café`},
		{name: "bom stripped", body: []byte("\xef\xbb\xbfhi"), contentType: "text/plain", want: "hi"},
		{name: "invalid bytes replaced", body: []byte("a\xffb"), contentType: "text/plain; charset=utf-8", want: "a�b"},
		{name: "no hint invalid bytes", body: []byte("a\xe9b"), contentType: "text/html", want: "a�b"},
		{name: "utf8 after long ascii head", body: []byte(longHead + `<a href="/caf` + "\xc3\xa9" + `">`), contentType: "text/html", want: longHead + `<a href="/café">`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeText(tt.body, tt.contentType)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestContentTypeHelpers(t *testing.T) {
	t.Parallel()

	require.True(t, IsText("text/css"))
	require.True(t, IsText("application/xhtml+xml; charset=utf-8"))
	require.False(t, IsText("image/png"))
	require.True(t, IsHTML("Text/HTML; charset=UTF-8"))
	require.False(t, IsHTML("text/plain"))
	require.Equal(t, "text/html", MediaType("text/html;;broken"))
}
