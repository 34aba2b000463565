package core

// streaming.go bounds and measures the statement stream without buffering
// the file.

import (
	"errors"
	"fmt"
	"io"
)

// ErrFileTooLarge is returned by a SizeLimitedReader once its limit is
// exceeded.
var ErrFileTooLarge = errors.New("file too large")

// SizeLimitedReader counts the bytes read through it and fails with
// ErrFileTooLarge when more than Max bytes arrive. Max <= 0 disables the
// limit.
type SizeLimitedReader struct {
	r     io.Reader
	Max   int64
	count int64
	err   error
}

// NewSizeLimitedReader wraps r.
func NewSizeLimitedReader(r io.Reader, max int64) *SizeLimitedReader {
	return &SizeLimitedReader{r: r, Max: max}
}

func (l *SizeLimitedReader) Read(p []byte) (int, error) {
	if l.Max > 0 {
		// Read at most one byte past the limit to detect overflow.
		if remaining := l.Max - l.count + 1; int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	n, err := l.r.Read(p)
	l.count += int64(n)
	if l.Max > 0 && l.count > l.Max {
		l.err = fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.Max)
		return n, l.err
	}
	return n, err
}

// Err returns the size error once the limit was exceeded. Consumers that
// treat a failed read as end of input may report a different error first.
func (l *SizeLimitedReader) Err() error {
	return l.err
}

// BytesRead returns the number of bytes read so far.
func (l *SizeLimitedReader) BytesRead() int64 {
	return l.count
}
