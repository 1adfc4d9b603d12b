package markup

import (
	"context"
	"errors"
	"strings"
)

// ErrMalformed marks documents the parser could not read.
var ErrMalformed = errors.New("malformed markup")

// Attr is a single element attribute.
type Attr struct {
	Key string
	Val string
}

// StartElementFunc receives each start tag; name is lower-cased.
type StartElementFunc func(name string, attrs []Attr)

// EntityResolver loads external DTDs and entity files.
type EntityResolver interface {
	Resolve(ctx context.Context, publicID, systemID string) ([]byte, error)
}

// Lookup returns the value of the first attribute called key.
func Lookup(attrs []Attr, key string) (string, bool) {
	for _, a := range attrs {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
