package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidSinkFormat(t *testing.T) {
	assert.True(t, IsValidSinkFormat("segment"))
	assert.True(t, IsValidSinkFormat("parquet"))
	assert.False(t, IsValidSinkFormat("csv"))
	assert.False(t, IsValidSinkFormat(""))
}

func TestIsValidCompression(t *testing.T) {
	tests := []struct {
		format, codec string
		want          bool
	}{
		{SinkFormatSegment, "zstd", true},
		{SinkFormatSegment, "none", true},
		{SinkFormatSegment, "", true},
		{SinkFormatSegment, "snappy", false},
		{SinkFormatParquet, "snappy", true},
		{SinkFormatParquet, "lz4", true},
		{SinkFormatParquet, "gzip", true},
		{SinkFormatParquet, "brotli", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidCompression(tt.format, tt.codec), "%s/%s", tt.format, tt.codec)
	}
}

func TestIsValidLogFormat(t *testing.T) {
	for _, f := range []string{"", "auto", "text", "json"} {
		assert.True(t, IsValidLogFormat(f), f)
	}
	assert.False(t, IsValidLogFormat("xml"))
}

func TestIsSinkFile(t *testing.T) {
	assert.True(t, IsSinkFile(".seg"))
	assert.True(t, IsSinkFile(".parquet"))
	assert.False(t, IsSinkFile(".txt"))
}
