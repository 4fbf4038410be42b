package storage

import (
	"io"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

// LimitReader returns a reader that fails with common.ErrSizeExceeded once
// more than n bytes have been read from r. n <= 0 disables the limit.
func LimitReader(r io.Reader, n int64) io.Reader {
	if n <= 0 {
		return r
	}
	return &limitedReader{r: r, left: n}
}

type limitedReader struct {
	r    io.Reader
	left int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	// read one byte past the limit to tell "exactly n" from "more than n"
	if int64(len(p)) > l.left+1 {
		p = p[:l.left+1]
	}
	n, err := l.r.Read(p)
	if int64(n) > l.left {
		l.left = -1
		return 0, common.ErrSizeExceeded
	}
	l.left -= int64(n)
	return n, err
}
