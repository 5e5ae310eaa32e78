package filerelay

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var SupportedKinds = map[FileKind]bool{
	KindDocument: true,
	KindVideo:    true,
	KindAudio:    true,
	KindPhoto:    true,
}

// fallback names for attachments the chat client delivers without a filename
var kindDefaults = map[FileKind]struct {
	prefix string
	ext    string
}{
	KindVideo: {"video", ".mp4"},
	KindAudio: {"audio", ".mp3"},
	KindPhoto: {"photo", ".jpg"},
}

func getAllowedMsg(options map[FileKind]bool) string {
	out := []string{}
	for k, v := range options {
		if v {
			out = append(out, string(k))
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

type Validator struct {
	maxFileSize  int64
	allowedKinds map[FileKind]bool
}

type ValidatorOption func(*Validator)

func WithMaxFileSize(size int64) ValidatorOption {
	return func(v *Validator) {
		if size > 0 {
			v.maxFileSize = size
		}
	}
}

func WithAllowedKinds(kinds map[FileKind]bool) ValidatorOption {
	return func(v *Validator) {
		v.allowedKinds = kinds
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		maxFileSize:  DefaultMaxFileSize,
		allowedKinds: SupportedKinds,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// ValidateRequest checks a request before any I/O happens. Failures wrap
// ErrRequestRejected.
func (v *Validator) ValidateRequest(req TransferRequest) error {
	if req.Size < 0 || req.Size > v.maxFileSize {
		verr := gerrors.NewValidation("transfer request validation failed",
			gerrors.FieldError{
				Field:   "size",
				Message: fmt.Sprintf("file too large, max: %d bytes", v.maxFileSize),
				Value:   req.Size,
			},
		).WithCode(400).WithTextCode("FILE_TOO_LARGE").
			WithMetadata(map[string]any{
				"filename": req.Name,
				"size":     req.Size,
				"max_size": v.maxFileSize,
			})
		return fmt.Errorf("%w: %w", ErrRequestRejected, verr)
	}

	if !v.allowedKinds[req.Kind] {
		verr := gerrors.NewValidation("transfer request validation failed",
			gerrors.FieldError{
				Field:   "kind",
				Message: fmt.Sprintf("unsupported file kind, allowed: %s", getAllowedMsg(v.allowedKinds)),
				Value:   req.Kind,
			},
		).WithCode(400).WithTextCode("UNSUPPORTED_KIND")
		return fmt.Errorf("%w: %w", ErrRequestRejected, verr)
	}

	if req.Source == nil {
		verr := gerrors.NewValidation("transfer request validation failed",
			gerrors.FieldError{
				Field:   "source",
				Message: "source cannot be nil",
			},
		)
		return fmt.Errorf("%w: %w", ErrRequestRejected, verr)
	}

	return nil
}

// ResolveName returns the display name of an attachment. Documents keep their
// own name, other kinds without one get "<kind>_<unix>.<ext>".
func ResolveName(req TransferRequest, now time.Time) string {
	name := filepath.Base(strings.TrimSpace(req.Name))
	if name == "." || name == "/" {
		name = ""
	}

	if name != "" && filepath.Ext(name) == "" {
		if ext := ExtensionFor(req.MimeType); ext != "" {
			name += ext
		}
	}

	if name != "" {
		return name
	}

	def, ok := kindDefaults[req.Kind]
	if !ok {
		def.prefix, def.ext = "file", ""
	}

	if ext := ExtensionFor(req.MimeType); ext != "" {
		def.ext = ext
	}

	return fmt.Sprintf("%s_%d%s", def.prefix, now.Unix(), def.ext)
}

// UniqueName prefixes name with a random token so concurrent transfers never
// collide, both in the staging directory and in the bucket.
func UniqueName(name string) string {
	return uuid.NewString() + "_" + name
}

func validateObjectKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}

	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return ErrInvalidKey
		}
	}

	return nil
}
