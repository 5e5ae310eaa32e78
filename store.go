package filerelay

import (
	"context"
	"io"
	"time"
)

// ObjectRecord describes an object created by a successful upload. The
// bucket is its only owner.
type ObjectRecord struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// ObjectInfo is the metadata returned by a HEAD probe.
type ObjectInfo struct {
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore moves staged files to and from an S3 compatible bucket. The
// progress callbacks receive byte deltas, one per transferred chunk.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, key, contentType string, progress func(n int64)) (*ObjectRecord, error)
	Download(ctx context.Context, key, localPath string, progress func(n int64)) error
	// HeadInfo returns false when metadata could not be retrieved for any
	// reason. Absence means unknown, not deleted.
	HeadInfo(ctx context.Context, key string) (*ObjectInfo, bool)
	PresignedURL(ctx context.Context, key string, expires time.Duration, inline bool) (string, error)
	Delete(ctx context.Context, key string) error
}

type StoreValidator interface {
	Validate(context.Context) error
}

// contentDisposition returns the disposition stored with an object so
// browsers render media instead of downloading it.
func contentDisposition(contentType string) string {
	if IsStreamable(contentType) {
		return "inline"
	}
	return ""
}

// progressReader reports every successful read as a delta.
type progressReader struct {
	reader io.Reader
	report func(n int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 && pr.report != nil {
		pr.report(int64(n))
	}
	return n, err
}

// seekingProgressReader reports reads over a seekable body. Bytes are only
// reported the first time they are read, so a body rewound for a checksum
// pass or a retry is never counted twice.
type seekingProgressReader struct {
	body     io.ReadSeeker
	report   func(n int64)
	pos      int64
	reported int64
}

func newSeekingProgressReader(body io.ReadSeeker, report func(n int64)) *seekingProgressReader {
	return &seekingProgressReader{body: body, report: report}
}

func (r *seekingProgressReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.pos += int64(n)
	if r.pos > r.reported {
		if r.report != nil {
			r.report(r.pos - r.reported)
		}
		r.reported = r.pos
	}
	return n, err
}

func (r *seekingProgressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.body.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.pos = pos
	return pos, nil
}

func partCount(size, partSize int64) int {
	if size <= 0 {
		return 1
	}
	return int((size + partSize - 1) / partSize)
}
