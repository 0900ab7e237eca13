package progress

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderReportsAtIntervals(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)

	var reports []int64

	pr := NewReader(iotest.OneByteReader(bytes.NewReader(data)), 0, 30, func(read, total int64) {
		reports = append(reports, read)
	})

	n, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	assert.Equal(t, int64(100), pr.BytesRead())

	assert.Equal(t, []int64{30, 60, 90, 100}, reports)
}

func TestReaderReportsFirstFivePercent(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)

	var reports []int64

	pr := NewReader(iotest.OneByteReader(bytes.NewReader(data)), 1000, 1<<20, func(read, total int64) {
		assert.Equal(t, int64(1000), total)
		reports = append(reports, read)
	})

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)

	assert.Equal(t, []int64{50, 1000}, reports)
}

func TestReaderWithoutCallback(t *testing.T) {
	pr := NewReader(bytes.NewReader([]byte("abc")), 3, 1, nil)

	b, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))
}
