package filerelay

import (
	gerrors "github.com/goliatone/go-errors"
)

var (
	ErrRequestRejected = gerrors.New("request rejected", gerrors.CategoryBadInput).
				WithCode(400).
				WithTextCode("REQUEST_REJECTED")

	ErrDownloadFailed = gerrors.New("download failed", gerrors.CategoryExternal).
				WithCode(502).
				WithTextCode("DOWNLOAD_FAILED")

	ErrStoreUnavailable = gerrors.New("object store unavailable", gerrors.CategoryExternal).
				WithCode(503).
				WithTextCode("STORE_UNAVAILABLE")

	ErrObjectTooLarge = gerrors.New("object too large", gerrors.CategoryBadInput).
				WithCode(413).
				WithTextCode("OBJECT_TOO_LARGE")

	ErrPartialUploadFailure = gerrors.New("partial upload failure", gerrors.CategoryExternal).
				WithCode(502).
				WithTextCode("PARTIAL_UPLOAD_FAILURE")

	ErrObjectNotFound = gerrors.New("object not found", gerrors.CategoryNotFound).
				WithCode(404).
				WithTextCode("OBJECT_NOT_FOUND")

	ErrLinkGenerationFailed = gerrors.New("link generation failed", gerrors.CategoryInternal).
				WithCode(500).
				WithTextCode("LINK_GENERATION_FAILED")

	ErrPermissionDenied = gerrors.New("permission denied", gerrors.CategoryAuthz).
				WithCode(403).
				WithTextCode("PERMISSION_DENIED")

	ErrInvalidKey = gerrors.New("invalid object key", gerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode("INVALID_KEY")

	ErrBridgeClosed = gerrors.New("transfer bridge closed", gerrors.CategoryInternal).
			WithCode(503).
			WithTextCode("BRIDGE_CLOSED")

	ErrNotifierClosed = gerrors.New("transfer notifier closed", gerrors.CategoryInternal).
				WithCode(503).
				WithTextCode("NOTIFIER_CLOSED")

	ErrStoreNotConfigured = gerrors.New("object store not configured", gerrors.CategoryInternal).
				WithCode(500).
				WithTextCode("STORE_NOT_CONFIGURED")
)
