package resource

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		scheme   Scheme
		location string
		members  []string
	}{
		{"/data/corpus.txt", SchemeLocal, "/data/corpus.txt", nil},
		{"file:///data/corpus.txt", SchemeLocal, "/data/corpus.txt", nil},
		{"https://example.com/model.tar.gz", SchemeHTTP, "https://example.com/model.tar.gz", nil},
		{"http://example.com/a?b=c", SchemeHTTP, "http://example.com/a?b=c", nil},
		{"s3://bucket/models/weights.bin", SchemeS3, "s3://bucket/models/weights.bin", nil},
		{"hf://org/repo/config.json", SchemeHub, "hf://org/repo/config.json", nil},
		{"hub://org/repo/config.json", SchemeHub, "hf://org/repo/config.json", nil},
		{
			"https://example.com/archive.zip!dir/file.txt",
			SchemeHTTP, "https://example.com/archive.zip", []string{"dir/file.txt"},
		},
		{
			"s3://bucket/nested.tar!inner.zip!doc.txt",
			SchemeS3, "s3://bucket/nested.tar", []string{"inner.zip", "doc.txt"},
		},
		{
			`/data/weird\!name.zip!member.txt`,
			SchemeLocal, "/data/weird!name.zip", []string{"member.txt"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			id, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, id.Scheme)
			assert.Equal(t, tt.location, id.Location)
			assert.Equal(t, tt.members, id.Members)
		})
	}
}

func TestParseUnsupportedScheme(t *testing.T) {
	t.Parallel()

	_, err := Parse("gopher://example.com/hole")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	_, err := Parse("")
	require.Error(t, err)

	_, err = Parse("https://example.com/a.zip!!x")
	require.Error(t, err)
}

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Parse("https://example.com/model.bin")
	require.NoError(t, err)
	b, err := Parse("https://example.com/model.bin!inner/file")
	require.NoError(t, err)

	// The member chain never changes the base key: members are extracted from
	// the cached base artifact, not fetched separately.
	assert.Equal(t, a.Key(), b.Key())
	assert.Len(t, a.Key(), 64)

	c, err := Parse("https://example.com/other.bin")
	require.NoError(t, err)
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestKeyNormalizesLocalScheme(t *testing.T) {
	t.Parallel()

	bare, err := Parse("/data/file.txt")
	require.NoError(t, err)
	prefixed, err := Parse("file:///data/file.txt")
	require.NoError(t, err)
	assert.Equal(t, bare.Key(), prefixed.Key())
}

func TestMemberKey(t *testing.T) {
	t.Parallel()

	id, err := Parse("https://example.com/nested.tar!inner.zip!doc.txt")
	require.NoError(t, err)

	k1 := id.MemberKey(id.Members[:1])
	k2 := id.MemberKey(id.Members)
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, id.Key(), k1)
}

func TestIdentifierString(t *testing.T) {
	t.Parallel()

	id, err := Parse("s3://bucket/nested.tar!inner.zip!doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/nested.tar!inner.zip!doc.txt", id.String())
	assert.Equal(t, "s3://bucket/nested.tar", id.Base().String())
}
