package progress

import "io"

// Reader wraps an io.Reader and reports the cumulative byte count every interval
// bytes, when crossing 5% of Total, and at EOF for the bytes not reported yet.
type Reader struct {
	Reader     io.Reader
	Total      int64 // 0 when unknown
	OnProgress func(read int64, total int64)

	read     int64
	pending  int64 // bytes since last report
	interval int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(read int64, total int64)) *Reader {
	return &Reader{
		Reader:     r,
		Total:      total,
		OnProgress: cb,
		interval:   interval,
	}
}

// Read implements io.Reader.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)

	if n > 0 {
		before := pr.read
		pr.read += int64(n)
		pr.pending += int64(n)

		if pr.pending >= pr.interval || pr.crossedFirstStep(before) {
			pr.report()
		}
	}

	if err == io.EOF && pr.pending > 0 {
		pr.report()
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) crossedFirstStep(before int64) bool {
	return pr.Total > 0 && pr.read*100/pr.Total >= 5 && before*100/pr.Total < 5
}

func (pr *Reader) report() {
	pr.pending = 0

	if pr.OnProgress != nil {
		pr.OnProgress(pr.read, pr.Total)
	}
}
