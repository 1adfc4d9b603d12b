package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripSessionID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"http://h/p;jsessionid=X?q=1", "http://h/p?q=1"},
		{"http://h/p;jsessionid=X", "http://h/p"},
		{"http://h/p?a=1;jsessionid=X", "http://h/p?a=1"},
		{"http://h/p?q=1", "http://h/p?q=1"},
		{"http://h/", "http://h/"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StripSessionID(tc.in), tc.in)
	}
}

func TestNormalizeHostAndStart(t *testing.T) {
	t.Parallel()

	require.Equal(t, "http://h/", NormalizeHost("http://h"))
	require.Equal(t, "http://h/", NormalizeHost("http://h/"))
	require.Equal(t, "http://h/index.html", ResolveStart("http://h", "/index.html"))
	require.Equal(t, "http://h/index.html", ResolveStart("http://h/", "index.html"))
	require.Equal(t, "http://h/a", ResolveStart("http://h/", "http://h/a"))
	require.Equal(t, "http://h/", ResolveStart("http://h/", ""))
}

func TestValidateHost(t *testing.T) {
	t.Parallel()

	_, err := ValidateHost("ftp://h/")
	require.Error(t, err)
	_, err = ValidateHost("http:///path")
	require.Error(t, err)
	u, err := ValidateHost("https://example.com:8443/")
	require.NoError(t, err)
	require.Equal(t, "example.com", u.Hostname())
}

func TestSameOriginIgnoresPort(t *testing.T) {
	t.Parallel()

	host, _ := url.Parse("http://example.com/")
	other, _ := url.Parse("http://EXAMPLE.com:8080/x")
	require.True(t, SameOrigin(host, other))

	tls, _ := url.Parse("https://example.com/")
	require.False(t, SameOrigin(host, tls))
	require.False(t, SameOrigin(nil, other))
}
