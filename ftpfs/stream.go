package ftpfs

import (
	"io"
	"sync"
	"sync/atomic"
)

// SizedStream is a read stream paired with a length obtained before the
// stream was opened. FTP downloads do not report their total size, so the
// length comes from a separate SIZE request (or from a FileEntry).
//
// The length is reported as captured. It is never checked against the number
// of bytes actually read, so a file that changed between the size query and
// the download will disagree with Length.
type SizedStream struct {
	rc     io.ReadCloser
	length int64

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// NewSizedStream takes ownership of rc. Closing the SizedStream closes rc.
func NewSizedStream(rc io.ReadCloser, length int64) *SizedStream {
	return &SizedStream{rc: rc, length: length}
}

func (s *SizedStream) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.rc.Read(p)
}

// Seek delegates to the wrapped stream. Network streams cannot seek and
// return ErrNotSeekable.
func (s *SizedStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	seeker, ok := s.rc.(io.Seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	return seeker.Seek(offset, whence)
}

// Position returns the current offset of the wrapped stream.
func (s *SizedStream) Position() (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// SetPosition moves the wrapped stream to an absolute offset.
func (s *SizedStream) SetPosition(pos int64) error {
	_, err := s.Seek(pos, io.SeekStart)
	return err
}

// Length returns the byte length captured when the stream was opened.
func (s *SizedStream) Length() int64 {
	return s.length
}

// Close releases the wrapped stream. Subsequent calls return the first
// result.
func (s *SizedStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

var _ io.ReadSeekCloser = (*SizedStream)(nil)
