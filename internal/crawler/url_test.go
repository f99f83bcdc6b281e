package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"HTTPS://Shop.Test:443/produtos/departamento/bebidas/": "https://shop.test/produtos/departamento/bebidas",
		"http://shop.test:80/a?b=2&a=1#top":                    "http://shop.test/a?a=1&b=2",
		"https://shop.test/":                                   "https://shop.test/",
		"https://shop.test:8443/x":                             "https://shop.test:8443/x",
	}
	for in, want := range cases {
		got, err := CanonicalURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := CanonicalURL("https://shop.test/%zz")
	require.Error(t, err)
}
