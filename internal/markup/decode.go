package markup

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// prescanBytes is how far charset.DetermineEncoding looks for a <meta> charset.
const prescanBytes = 1024

// IsText reports whether contentType names a textual body.
func IsText(contentType string) bool {
	mt := MediaType(contentType)
	return strings.HasPrefix(mt, "text/") || mt == "application/xhtml+xml"
}

// IsHTML reports whether contentType names an HTML or XHTML document.
func IsHTML(contentType string) bool {
	mt := MediaType(contentType)
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// MediaType returns the lower-cased media type without parameters.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// DecodeText converts body to a UTF-8 string. The encoding comes from a BOM, the
// content type charset or a <meta> prescan. Without any of them the body is UTF-8 and
// invalid sequences become U+FFFD.
func DecodeText(body []byte, contentType string) (string, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && !declaresCharsetEarly(body) {
		// DetermineEncoding falls back to windows-1252 when it finds nothing.
		return validUTF8(body), nil
	}
	if name == "utf-8" {
		return validUTF8(body), nil
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", name, err)
	}
	return string(out), nil
}

// validUTF8 strips a leading BOM and replaces invalid sequences with U+FFFD.
func validUTF8(body []byte) string {
	out, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), body)
	if err != nil {
		return strings.ToValidUTF8(string(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))), "\uFFFD")
	}
	return string(out)
}

func declaresCharsetEarly(body []byte) bool {
	head := body[:min(len(body), prescanBytes)]
	return bytes.Contains(bytes.ToLower(head), []byte("charset"))
}
