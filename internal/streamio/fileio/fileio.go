// Package fileio is the local-filesystem streamio adapter: an
// *os.File-backed Source/Sink pair satisfying the resumable interfaces
// via os.File's native Seek.
package fileio

import (
	"fmt"
	"os"

	"github.com/hors-sit/pesitd/internal/streamio"
)

// File wraps *os.File as a streamio.ResumableSource/ResumableSink.
type File struct {
	f         *os.File
	size      int64
	sizeKnown bool
}

// OpenSource opens path for reading as a transfer source.
func OpenSource(path string) (streamio.ResumableSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileio: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fileio: stat %s: %w", path, err)
	}
	return &File{f: f, size: info.Size(), sizeKnown: true}, nil
}

// CreateSink creates (or truncates) path for writing as a transfer
// destination. When resuming, callers should open with OpenSinkForResume
// instead so the file isn't truncated.
func CreateSink(path string) (streamio.ResumableSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("fileio: create %s: %w", path, err)
	}
	return &File{f: f}, nil
}

// OpenSinkForResume opens path for writing without truncating, so the
// caller can Seek to the resume offset before the first Write.
func OpenSinkForResume(path string) (streamio.ResumableSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fileio: open %s for resume: %w", path, err)
	}
	return &File{f: f}, nil
}

func (s *File) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *File) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *File) Close() error                { return s.f.Close() }

func (s *File) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

func (s *File) Size() (int64, bool) {
	return s.size, s.sizeKnown
}
