package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-filerelay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quietLogger struct{}

func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

type linkCall struct {
	key     string
	expires time.Duration
	stream  bool
}

type fakeBackend struct {
	mu        sync.Mutex
	heads     int
	links     []linkCall
	infos     map[string]*filerelay.ObjectInfo
	linkErr   error
	transfer  func(ctx context.Context, req filerelay.TransferRequest) (*filerelay.TransferResult, error)
	lastTrans filerelay.TransferRequest
}

func (f *fakeBackend) Link(ctx context.Context, key string, expires time.Duration, stream bool) (*filerelay.AccessLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, linkCall{key: key, expires: expires, stream: stream})
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return &filerelay.AccessLink{URL: "https://example.com/" + key, Expires: expires, Streamable: stream}, nil
}

func (f *fakeBackend) HeadInfo(ctx context.Context, key string) (*filerelay.ObjectInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads++
	info, ok := f.infos[key]
	return info, ok
}

func (f *fakeBackend) Transfer(ctx context.Context, req filerelay.TransferRequest, sink filerelay.ProgressSink) (*filerelay.TransferResult, error) {
	f.mu.Lock()
	f.lastTrans = req
	f.mu.Unlock()
	return f.transfer(ctx, req)
}

func newTestServer(backend Backend, opts ...Option) http.Handler {
	base := []Option{WithLogger(quietLogger{}), WithGatherer(prometheus.NewRegistry())}
	return New(backend, append(base, opts...)...).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(&fakeBackend{}, WithLogger(quietLogger{}))
	s.now = func() time.Time { return now }

	rec := do(t, s.Handler(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Timestamp.Equal(now))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := filerelay.NewMetrics(reg)
	require.NoError(t, err)
	metrics.RecordTransfer(time.Second, nil)

	h := newTestServer(&fakeBackend{}, WithGatherer(reg))
	rec := do(t, h, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `filerelay_transfers_total{outcome="success"} 1`)
}

func TestObjectInfo(t *testing.T) {
	backend := &fakeBackend{
		infos: map[string]*filerelay.ObjectInfo{
			"dir/k_movie.mp4": {Size: 42, ContentType: "video/mp4"},
		},
	}
	h := newTestServer(backend)

	rec := do(t, h, http.MethodGet, "/api/v1/objects/dir/k_movie.mp4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	info := decode[filerelay.ObjectInfo](t, rec)
	assert.Equal(t, int64(42), info.Size)
	assert.Equal(t, "video/mp4", info.ContentType)

	rec = do(t, h, http.MethodGet, "/api/v1/objects/dir/k_movie.mp4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, backend.heads, "second lookup should be served from cache")
}

func TestObjectInfoNotFound(t *testing.T) {
	backend := &fakeBackend{}
	h := newTestServer(backend)

	rec := do(t, h, http.MethodGet, "/api/v1/objects/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "OBJECT_NOT_FOUND", decode[ErrorResponse](t, rec).TextCode)

	rec = do(t, h, http.MethodGet, "/api/v1/objects/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 2, backend.heads, "absence is not cached")
}

func TestLink(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		expires time.Duration
		stream  bool
	}{
		{
			name:   "streamable by extension",
			target: "/api/v1/links/k_movie.mp4",
			stream: true,
		},
		{
			name:   "document by extension",
			target: "/api/v1/links/k_notes.txt",
			stream: false,
		},
		{
			name:    "explicit stream and seconds",
			target:  "/api/v1/links/k_notes.txt?stream=true&expires=3600",
			expires: time.Hour,
			stream:  true,
		},
		{
			name:    "duration expiry",
			target:  "/api/v1/links/k_movie.mp4?stream=false&expires=90m",
			expires: 90 * time.Minute,
			stream:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			rec := do(t, newTestServer(backend), http.MethodGet, tt.target, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			require.Len(t, backend.links, 1)
			assert.Equal(t, tt.expires, backend.links[0].expires)
			assert.Equal(t, tt.stream, backend.links[0].stream)

			link := decode[filerelay.AccessLink](t, rec)
			assert.Equal(t, tt.stream, link.Streamable)
			assert.True(t, strings.HasPrefix(link.URL, "https://example.com/k_"))
		})
	}
}

func TestLinkInvalidParameters(t *testing.T) {
	for _, target := range []string{
		"/api/v1/links/k_movie.mp4?stream=maybe",
		"/api/v1/links/k_movie.mp4?expires=-5",
		"/api/v1/links/k_movie.mp4?expires=0s",
		"/api/v1/links/k_movie.mp4?expires=soon",
	} {
		t.Run(target, func(t *testing.T) {
			backend := &fakeBackend{}
			rec := do(t, newTestServer(backend), http.MethodGet, target, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_PARAMETER", decode[ErrorResponse](t, rec).TextCode)
			assert.Empty(t, backend.links)
		})
	}
}

func TestLinkBackendErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{filerelay.ErrInvalidKey, http.StatusBadRequest, "INVALID_KEY"},
		{fmt.Errorf("%w: boom", filerelay.ErrLinkGenerationFailed), http.StatusInternalServerError, "LINK_GENERATION_FAILED"},
		{fmt.Errorf("%w: dial", filerelay.ErrStoreUnavailable), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{errors.New("plain"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			backend := &fakeBackend{linkErr: tt.err}
			rec := do(t, newTestServer(backend), http.MethodGet, "/api/v1/links/k.txt", nil)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.TextCode)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestTransfersList(t *testing.T) {
	rec := do(t, newTestServer(&fakeBackend{}), http.MethodGet, "/api/v1/transfers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	registry := filerelay.NewTransferRegistry(time.Hour)
	_, err := registry.Begin("t-1", "clip.mp4", 10)
	require.NoError(t, err)
	registry.Transition("t-1", filerelay.StateUploading, nil)

	rec = do(t, newTestServer(&fakeBackend{}, WithRegistry(registry)), http.MethodGet, "/api/v1/transfers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	records := decode[[]filerelay.TransferRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "t-1", records[0].ID)
	assert.Equal(t, filerelay.StateUploading, records[0].State)
}

func TestCreateTransfer(t *testing.T) {
	backend := &fakeBackend{
		transfer: func(ctx context.Context, req filerelay.TransferRequest) (*filerelay.TransferResult, error) {
			var sb strings.Builder
			if err := req.Source.Download(ctx, &sb, nil); err != nil {
				return nil, err
			}
			if sb.String() != "video-bytes" {
				return nil, errors.New("unexpected body")
			}

			return &filerelay.TransferResult{
				ID:             "t-1",
				Name:           req.Name,
				Object:         filerelay.ObjectRecord{Key: "k_clip.mp4", ContentType: "video/mp4", Size: req.Size},
				Link:           filerelay.AccessLink{URL: "https://example.com/k_clip.mp4", Streamable: true},
				Classification: filerelay.Classify(req.Name),
			}, nil
		},
	}
	h := newTestServer(backend, WithPlayerBase("https://player.example.com"))

	rec := do(t, h, http.MethodPost, "/api/v1/transfers?name=clip.mp4", strings.NewReader("video-bytes"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, filerelay.KindVideo, backend.lastTrans.Kind)
	assert.Equal(t, int64(len("video-bytes")), backend.lastTrans.Size)

	resp := decode[TransferResponse](t, rec)
	assert.Equal(t, "k_clip.mp4", resp.Object.Key)
	require.Len(t, resp.Actions, 2)
	assert.Equal(t, "▶️ Stream Online", resp.Actions[0].Label)
	assert.True(t, strings.HasPrefix(resp.Actions[0].URL, "https://player.example.com/player?url="))
	assert.Equal(t, "https://example.com/k_clip.mp4", resp.Actions[1].URL)
}

func TestCreateTransferExplicitKind(t *testing.T) {
	backend := &fakeBackend{
		transfer: func(ctx context.Context, req filerelay.TransferRequest) (*filerelay.TransferResult, error) {
			return nil, fmt.Errorf("%w: kind", filerelay.ErrRequestRejected)
		},
	}

	rec := do(t, newTestServer(backend), http.MethodPost, "/api/v1/transfers?name=a.bin&kind=sticker", strings.NewReader("x"))

	assert.Equal(t, filerelay.FileKind("sticker"), backend.lastTrans.Kind)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQUEST_REJECTED", decode[ErrorResponse](t, rec).TextCode)
}

func TestCreateTransferRequiresLength(t *testing.T) {
	backend := &fakeBackend{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers?name=a.txt", strings.NewReader("abc"))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	newTestServer(backend).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusLengthRequired, rec.Code)
	assert.Equal(t, "LENGTH_REQUIRED", decode[ErrorResponse](t, rec).TextCode)
	assert.Empty(t, backend.lastTrans.Name)
}

func TestParseExpires(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "60", want: time.Minute},
		{raw: "2h", want: 2 * time.Hour},
		{raw: "0", wantErr: true},
		{raw: "-1m", wantErr: true},
		{raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseExpires(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
