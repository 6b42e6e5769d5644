package s3fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		location string
		want     object
	}{
		{
			"s3://bucket/models/weights.bin",
			object{bucket: "bucket", key: "models/weights.bin", endpoint: defaultEndpoint, secure: true},
		},
		{
			"s3://ak:sk@bucket/key",
			object{bucket: "bucket", key: "key", endpoint: defaultEndpoint, secure: true, accessKey: "ak", secretKey: "sk"},
		},
		{
			"s3://bucket/key?endpoint_url=https://minio.internal:9000&region=us-west-2",
			object{bucket: "bucket", key: "key", endpoint: "minio.internal:9000", secure: true, region: "us-west-2"},
		},
		{
			"s3://bucket/key?endpoint_url=http://localhost:9000",
			object{bucket: "bucket", key: "key", endpoint: "localhost:9000", secure: false},
		},
	}
	for _, tc := range tests {
		obj, err := parseLocation(tc.location)
		require.NoError(t, err, tc.location)
		assert.Equal(t, tc.want, obj, tc.location)
	}
}

func TestParseLocationInvalid(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"s3://bucket", "s3:///key", "s3://bucket/"} {
		_, err := parseLocation(bad)
		require.Error(t, err, bad)
	}
}

func TestClientReuse(t *testing.T) {
	t.Parallel()

	b := New()
	obj, err := parseLocation("s3://ak:sk@bucket/key?endpoint_url=http://localhost:9000")
	require.NoError(t, err)

	c1, err := b.client(obj)
	require.NoError(t, err)
	c2, err := b.client(obj)
	require.NoError(t, err)
	assert.Same(t, c1, c2, "one client per endpoint/region/credential set")
}
