package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
		size   int64
		want   ByteRange
	}{
		{"closed", "bytes=0-9", 100, ByteRange{0, 9}},
		{"single byte", "bytes=5-5", 100, ByteRange{5, 5}},
		{"open ended", "bytes=10-", 100, ByteRange{10, 99}},
		{"last byte", "bytes=99-", 100, ByteRange{99, 99}},
		{"end clamped", "bytes=90-500", 100, ByteRange{90, 99}},
		{"suffix", "bytes=-10", 100, ByteRange{90, 99}},
		{"suffix longer than file", "bytes=-500", 100, ByteRange{0, 99}},
		{"unit is case insensitive", "Bytes=0-0", 100, ByteRange{0, 0}},
		{"whitespace", " bytes= 1 - 2 ", 100, ByteRange{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.End-tt.want.Start+1, got.Length())
		})
	}
}

func TestParseRangeInvalid(t *testing.T) {
	tests := []struct {
		name   string
		header string
		size   int64
	}{
		{"start past end of file", "bytes=999999-", 100},
		{"start equals size", "bytes=100-", 100},
		{"end before start", "bytes=50-10", 100},
		{"wrong unit", "items=0-9", 100},
		{"no dash", "bytes=10", 100},
		{"empty range set", "bytes=", 100},
		{"negative start", "bytes=--5", 100},
		{"signed start", "bytes=+5-10", 100},
		{"garbage", "bytes=a-b", 100},
		{"zero suffix", "bytes=-0", 100},
		{"empty file", "bytes=0-", 0},
		{"overflow", "bytes=99999999999999999999-", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRange(tt.header, tt.size)

			var rangeErr *InvalidRangeError
			require.ErrorAs(t, err, &rangeErr)
			assert.Equal(t, tt.size, rangeErr.Size)
			assert.Equal(t, tt.header, rangeErr.Header)
		})
	}
}

func TestParseRangeMultiple(t *testing.T) {
	_, err := ParseRange("bytes=0-1,5-6", 100)
	assert.True(t, errors.Is(err, ErrMultipleRanges))
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "bytes 0-9/100", ByteRange{0, 9}.ContentRange(100))
	assert.Equal(t, "bytes */100", UnsatisfiedContentRange(100))
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"meeting.mp4":        "video/mp4",
		"meeting.avi":        "video/x-msvideo",
		"meeting.mov":        "video/quicktime",
		"meeting.mp3":        "audio/mpeg",
		"meeting.wav":        "audio/wav",
		"meeting.m4a":        "audio/mp4",
		"MEETING.MP4":        "video/mp4",
		"dir.v2/meeting.Mov": "video/quicktime",
		"notes.txt":          DefaultContentType,
		"noextension":        DefaultContentType,
	}

	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, ContentTypeFor(path))
			assert.Equal(t, want != DefaultContentType, IsSupported(path))
		})
	}
}

func TestExtensions(t *testing.T) {
	assert.Equal(t, []string{".avi", ".m4a", ".mov", ".mp3", ".mp4", ".wav"}, Extensions())
}
