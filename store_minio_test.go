package filerelay

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioErrorClassification(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	assert.True(t, isMinioNotFound(notFound))
	assert.False(t, isMinioNotFound(errors.New("boom")))

	tests := []struct {
		name      string
		err       error
		multipart bool
		want      error
	}{
		{"too large", minio.ErrorResponse{Code: "EntityTooLarge", StatusCode: http.StatusBadRequest}, false, ErrObjectTooLarge},
		{"part failure", minio.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, true, ErrPartialUploadFailure},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, true, ErrStoreUnavailable},
		{"transport", errors.New("connection refused"), false, ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyMinioUploadError(tt.err, tt.multipart), tt.want)
		})
	}
}

func TestMinioStoreOptions(t *testing.T) {
	client, err := NewMinioClient(StorageConfig{
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)

	store := NewMinioStore(client, "relay").
		WithBasePath("files").
		WithMultipart(16*MiB, 16*MiB, 0)

	assert.Equal(t, "files/a.mp4", store.getKey("a.mp4"))
	assert.Equal(t, 16*MiB, store.multipartThreshold)
	assert.Equal(t, 16*MiB, store.partSize)
	assert.Equal(t, DefaultPartConcurrency, store.partConcurrency)
}

func TestProgressFuncReader(t *testing.T) {
	var total int64
	r := progressFunc(func(n int64) { total += n })

	n, err := r.Read(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, int64(32), total)
}
