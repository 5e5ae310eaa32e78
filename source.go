package filerelay

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Source is the inbound side of a transfer: the chat attachment. Download
// copies the attachment into dst, calling progress with cumulative byte counts.
type Source interface {
	Download(ctx context.Context, dst io.Writer, progress func(current, total int64)) error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, dst io.Writer, progress func(current, total int64)) error

func (f SourceFunc) Download(ctx context.Context, dst io.Writer, progress func(current, total int64)) error {
	return f(ctx, dst, progress)
}

// FileSource reads an attachment from the local filesystem.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Download(ctx context.Context, dst io.Writer, progress func(current, total int64)) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("file source: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("file source: stat: %w", err)
	}

	return copyWithProgress(ctx, dst, f, info.Size(), progress)
}

// ReaderSource wraps a reader of a known size.
type ReaderSource struct {
	Reader io.Reader
	Size   int64
}

func NewReaderSource(r io.Reader, size int64) *ReaderSource {
	return &ReaderSource{Reader: r, Size: size}
}

func (s *ReaderSource) Download(ctx context.Context, dst io.Writer, progress func(current, total int64)) error {
	if s.Reader == nil {
		return fmt.Errorf("reader source: reader is nil")
	}
	return copyWithProgress(ctx, dst, s.Reader, s.Size, progress)
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress func(current, total int64)) error {
	buf := make([]byte, copyChunkSize)
	var current int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write chunk: %w", werr)
			}
			current += int64(n)
			if progress != nil {
				progress(current, total)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read chunk: %w", rerr)
		}
	}

	if total >= 0 && current != total {
		return fmt.Errorf("short copy: got %d of %d bytes", current, total)
	}

	if current == 0 && progress != nil {
		progress(0, total)
	}

	return nil
}
