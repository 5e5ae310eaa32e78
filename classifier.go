package filerelay

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MediaKind is the player hint derived from a content type.
type MediaKind string

const (
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Classification describes how a file should be served.
type Classification struct {
	MimeType   string    `json:"mime_type"`
	Streamable bool      `json:"streamable"`
	MediaKind  MediaKind `json:"media_kind"`
}

var ContentTypes = map[string]string{
	// video
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
	// audio
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".weba": "audio/webm",
	".mid":  "audio/midi",
	".midi": "audio/midi",
	// image
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
	".heic": "image/heic",
	".ico":  "image/vnd.microsoft.icon",
	// documents
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".epub": "application/epub+zip",
	".apk":  "application/vnd.android.package-archive",
	// archives
	".zip": "application/zip",
	".rar": "application/vnd.rar",
	".7z":  "application/x-7z-compressed",
	".tar": "application/x-tar",
	".gz":  "application/gzip",
}

// Classify maps a filename to its content type using the static extension
// table. Unknown extensions fall back to DefaultContentType.
func Classify(filename string) Classification {
	ext := strings.ToLower(filepath.Ext(filename))

	contentType, ok := ContentTypes[ext]
	if !ok {
		contentType = DefaultContentType
	}

	return Classification{
		MimeType:   contentType,
		Streamable: IsStreamable(contentType),
		MediaKind:  MediaKindOf(contentType),
	}
}

// IsStreamable reports whether browsers can play the content inline.
func IsStreamable(contentType string) bool {
	return strings.HasPrefix(contentType, "video/") || strings.HasPrefix(contentType, "audio/")
}

func MediaKindOf(contentType string) MediaKind {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return MediaAudio
	default:
		return MediaDocument
	}
}

// KindFor maps a filename to the attachment kind a chat client would report
// for it.
func KindFor(filename string) FileKind {
	cls := Classify(filename)
	switch {
	case cls.MediaKind == MediaVideo:
		return KindVideo
	case cls.MediaKind == MediaAudio:
		return KindAudio
	case strings.HasPrefix(cls.MimeType, "image/"):
		return KindPhoto
	default:
		return KindDocument
	}
}

// ExtensionFor returns the canonical extension (with dot) for a MIME type, or
// an empty string when the type is unknown.
func ExtensionFor(mimeType string) string {
	if mimeType == "" {
		return ""
	}

	if m := mimetype.Lookup(mimeType); m != nil {
		return m.Extension()
	}
	return ""
}
