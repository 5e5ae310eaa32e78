package filerelay

import "time"

const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
)

var (
	// DefaultMaxFileSize is the hard cap applied to inbound attachments.
	DefaultMaxFileSize = 4 * GiB

	// DefaultLinkExpiration controls how long generated access links stay valid (7 days).
	DefaultLinkExpiration = 604800 * time.Second

	// DefaultMultipartThreshold is the size above which uploads switch to multipart.
	DefaultMultipartThreshold = 8 * MiB

	// DefaultPartSize is the size of every multipart chunk except the last one.
	DefaultPartSize = 8 * MiB

	// DefaultPartConcurrency caps the number of multipart parts in flight per upload.
	DefaultPartConcurrency = 10

	// DefaultBridgeWorkers is the size of the worker pool running blocking transfer I/O.
	DefaultBridgeWorkers = 4

	// DefaultProgressInterval is the minimum delay between two progress events of the same phase.
	DefaultProgressInterval = time.Second

	// DefaultStagingDir holds staged copies of inbound files while they are relayed.
	DefaultStagingDir = "downloads"

	// DefaultRegistryTTL is how long finished transfers stay visible in the registry.
	DefaultRegistryTTL = 30 * time.Minute

	// DefaultNotifyQueueSize bounds the events waiting for an async notifier.
	DefaultNotifyQueueSize = 256

	// DefaultContentType is used whenever a file extension is unknown.
	DefaultContentType = "application/octet-stream"

	// DefaultRegion mirrors the region used by the storage backend when none is configured.
	DefaultRegion = "us-east-1"
)

const copyChunkSize = 512 * 1024

// Phase identifies which leg of a transfer a progress event belongs to.
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseUpload   Phase = "upload"
)

// FileKind is the kind of attachment delivered by the chat collaborator.
type FileKind string

const (
	KindDocument FileKind = "document"
	KindVideo    FileKind = "video"
	KindAudio    FileKind = "audio"
	KindPhoto    FileKind = "photo"
)
