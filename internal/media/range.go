package media

import (
	"fmt"
	"strconv"
	"strings"
)

const bytesUnit = "bytes="

// ByteRange is an inclusive byte interval with 0 <= Start <= End < size.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for a file of size bytes.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// UnsatisfiedContentRange formats the Content-Range header of a 416 response.
func UnsatisfiedContentRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRange parses a single byte range header against a file of size bytes.
//
// Supported forms are "bytes=start-end", "bytes=start-" and "bytes=-suffix". An
// end past the last byte is clamped to size-1. A start at or past size, an end
// before start, or any malformed header yields an *InvalidRangeError. A
// header listing several ranges yields ErrMultipleRanges.
func ParseRange(header string, size int64) (ByteRange, error) {
	invalid := func(reason string) (ByteRange, error) {
		return ByteRange{}, &InvalidRangeError{Header: header, Size: size, Reason: reason}
	}

	h := strings.TrimSpace(header)
	if len(h) < len(bytesUnit) || !strings.EqualFold(h[:len(bytesUnit)], bytesUnit) {
		return invalid("unit must be bytes")
	}

	rangeSet := strings.TrimSpace(h[len(bytesUnit):])
	if strings.Contains(rangeSet, ",") {
		return ByteRange{}, ErrMultipleRanges
	}

	first, last, ok := strings.Cut(rangeSet, "-")
	if !ok {
		return invalid("missing '-'")
	}

	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if size <= 0 {
		return invalid("file is empty")
	}

	if first == "" {
		n, ok := parseOffset(last)
		if !ok || n == 0 {
			return invalid("bad suffix length")
		}

		if n > size {
			n = size
		}

		return ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, ok := parseOffset(first)
	if !ok {
		return invalid("bad start")
	}

	if start >= size {
		return invalid("start is past the end of the file")
	}

	end := size - 1

	if last != "" {
		e, ok := parseOffset(last)
		if !ok {
			return invalid("bad end")
		}

		if e < start {
			return invalid("end is before start")
		}

		if e < end {
			end = e
		}
	}

	return ByteRange{Start: start, End: end}, nil
}

// parseOffset accepts only plain decimal digits.
func parseOffset(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}
