package filerelay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	_ ObjectStore    = &FSStore{}
	_ StoreValidator = &FSStore{}
)

// FSStore keeps objects in a local directory. Links are plain URLs under
// urlPrefix carrying the expiry and disposition as query parameters; they are
// not signed and are meant for development setups.
type FSStore struct {
	root      fs.FS
	base      string
	urlPrefix string
	logger    Logger
	now       func() time.Time
}

func NewFSStore(base string) *FSStore {
	return &FSStore{
		root:   os.DirFS(base),
		base:   base,
		logger: &DefaultLogger{},
		now:    time.Now,
	}
}

func (s *FSStore) WithLogger(l Logger) *FSStore {
	s.logger = l
	return s
}

func (s *FSStore) WithFS(f fs.FS) *FSStore {
	s.root = f
	return s
}

func (s *FSStore) WithURLPrefix(prefix string) *FSStore {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	s.urlPrefix = prefix
	return s
}

func (s *FSStore) Upload(ctx context.Context, localPath, key, contentType string, progress func(n int64)) (*ObjectRecord, error) {
	if err := validateObjectKey(key); err != nil {
		return nil, err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("fs store: open staged file: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("fs store: stat staged file: %w", err)
	}

	fullPath := filepath.Join(s.base, filepath.Clean(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	if err := writeLocal(fullPath, &progressReader{reader: src, report: progress}); err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = DefaultContentType
	}

	s.logger.Info("upload object", "path", fullPath, "size", info.Size())

	return &ObjectRecord{
		Key:         key,
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}

func (s *FSStore) Download(ctx context.Context, key, localPath string, progress func(n int64)) error {
	f, err := s.root.Open(filepath.ToSlash(filepath.Clean(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if errors.Is(err, fs.ErrPermission) {
		return ErrPermissionDenied
	}
	if err != nil {
		return fmt.Errorf("fs read: %w", err)
	}
	defer f.Close()

	return writeLocal(localPath, &progressReader{reader: f, report: progress})
}

func (s *FSStore) HeadInfo(ctx context.Context, key string) (*ObjectInfo, bool) {
	info, err := fs.Stat(s.root, filepath.ToSlash(filepath.Clean(key)))
	if err != nil || info.IsDir() {
		return nil, false
	}

	return &ObjectInfo{
		Size:         info.Size(),
		ContentType:  Classify(key).MimeType,
		LastModified: info.ModTime(),
	}, true
}

func (s *FSStore) PresignedURL(ctx context.Context, key string, expires time.Duration, inline bool) (string, error) {
	if s.urlPrefix == "" {
		return "", fmt.Errorf("%w: url prefix not configured", ErrLinkGenerationFailed)
	}

	if expires <= 0 {
		expires = DefaultLinkExpiration
	}

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(s.now().Add(expires).Unix(), 10))
	if inline {
		q.Set("disposition", "inline")
	}

	return joinSegments(s.urlPrefix, key) + "?" + q.Encode(), nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	fullPath := filepath.Join(s.base, filepath.Clean(key))
	err := os.Remove(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if errors.Is(err, fs.ErrPermission) {
		return ErrPermissionDenied
	}

	if err != nil {
		return fmt.Errorf("fs delete: %w", err)
	}
	return nil
}

func (s *FSStore) Validate(ctx context.Context) error {
	info, err := os.Stat(s.base)
	if err != nil {
		return fmt.Errorf("fs store: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("fs store: %s is not a directory", s.base)
	}
	return nil
}

// Open exposes stored objects read-only, e.g. to serve development links.
func (s *FSStore) Open(name string) (fs.File, error) {
	return s.root.Open(name)
}

func joinSegments(prefix, key string) string {
	key = strings.TrimPrefix(key, "/")

	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return prefix + strings.Join(segments, "/")
}
