package main

import (
	"errors"
	"io"
	"sync"
)

// pdfStream hands the browser's PDF stream to the HTTP response and tears
// the browser down the first time it is drained or closed. Close is safe to
// call any number of times; release runs once.
type pdfStream struct {
	src     io.ReadCloser
	release func() error

	once     sync.Once
	closeErr error
	n        int64
}

func newPDFStream(src io.ReadCloser, release func() error) *pdfStream {
	return &pdfStream{src: src, release: release}
}

func (s *pdfStream) Read(p []byte) (int, error) {
	n, err := s.src.Read(p)
	s.n += int64(n)
	if err != nil {
		// Teardown errors surface from Close, which the caller still runs.
		_ = s.Close()
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, errors.Join(ErrStream, err)
	}
	return n, nil
}

func (s *pdfStream) Close() error {
	s.once.Do(func() {
		s.closeErr = errors.Join(s.src.Close(), s.release())
	})
	return s.closeErr
}

// BytesRead reports how many PDF bytes have been pulled so far.
func (s *pdfStream) BytesRead() int64 {
	return s.n
}
