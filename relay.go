package filerelay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransferRequest describes an inbound attachment.
type TransferRequest struct {
	Name     string
	Size     int64
	Kind     FileKind
	MimeType string
	Source   Source
}

// AccessLink is a time limited retrieval URL. It holds no server side state
// and can be generated again from the object key at any time.
type AccessLink struct {
	URL        string        `json:"url"`
	ExpiresAt  time.Time     `json:"expires_at"`
	Expires    time.Duration `json:"expires"`
	Streamable bool          `json:"streamable"`
}

type TransferResult struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Object         ObjectRecord   `json:"object"`
	Link           AccessLink     `json:"link"`
	Classification Classification `json:"classification"`
	Elapsed        time.Duration  `json:"elapsed"`
	// AverageSpeed is expressed in bytes per second over the whole transfer.
	AverageSpeed float64 `json:"average_speed"`
}

// Relay moves attachments from a Source to an ObjectStore through a local
// staging file and returns an access link for the stored object.
type Relay struct {
	logger           Logger
	store            ObjectStore
	bridge           *Bridge
	ownsBridge       bool
	validator        *Validator
	registry         *TransferRegistry
	notifier         Notifier
	metrics          *Metrics
	stagingDir       string
	linkExpiration   time.Duration
	progressInterval time.Duration
	storeMu          sync.Mutex
	storeValidated   bool
	timeNowFn        func() time.Time
}

type Option func(r *Relay)

func WithLogger(l Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithStore(s ObjectStore) Option {
	return func(r *Relay) {
		r.store = s
		r.storeValidated = false
	}
}

// WithBridge shares an existing worker pool. The relay does not close it.
func WithBridge(b *Bridge) Option {
	return func(r *Relay) {
		if b != nil {
			r.bridge = b
			r.ownsBridge = false
		}
	}
}

func WithValidator(v *Validator) Option {
	return func(r *Relay) {
		if v != nil {
			r.validator = v
		}
	}
}

func WithRegistry(reg *TransferRegistry) Option {
	return func(r *Relay) {
		if reg != nil {
			r.registry = reg
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(r *Relay) {
		if n != nil {
			r.notifier = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithStagingDir(dir string) Option {
	return func(r *Relay) {
		if dir != "" {
			r.stagingDir = dir
		}
	}
}

func WithLinkExpiration(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.linkExpiration = d
		}
	}
}

func WithProgressInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.progressInterval = d
		}
	}
}

func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		logger:           &DefaultLogger{},
		validator:        NewValidator(),
		registry:         NewTransferRegistry(DefaultRegistryTTL),
		notifier:         nopNotifier{},
		stagingDir:       DefaultStagingDir,
		linkExpiration:   DefaultLinkExpiration,
		progressInterval: DefaultProgressInterval,
		timeNowFn:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.bridge == nil {
		r.bridge = NewBridge(DefaultBridgeWorkers)
		r.ownsBridge = true
	}

	return r
}

func (r *Relay) timeNow() time.Time {
	if r.timeNowFn != nil {
		return r.timeNowFn()
	}
	return time.Now()
}

func (r *Relay) Registry() *TransferRegistry {
	return r.registry
}

func (r *Relay) LinkExpiration() time.Duration {
	return r.linkExpiration
}

// Close releases the worker pool when the relay created it.
func (r *Relay) Close() {
	if r.ownsBridge {
		r.bridge.Close()
	}
}

// transfer carries the per call state of Transfer.
type transfer struct {
	id      string
	name    string
	key     string
	size    int64
	tracker *ProgressTracker
	sink    ProgressSink
}

// Transfer relays one attachment: it stages the source locally, uploads the
// staged file and generates an access link. Progress events for both legs are
// passed to sink on the calling goroutine. The staged file is removed before
// Transfer returns, whatever the outcome.
func (r *Relay) Transfer(ctx context.Context, req TransferRequest, sink ProgressSink) (*TransferResult, error) {
	start := r.timeNow()

	t := &transfer{
		id:      uuid.NewString(),
		name:    ResolveName(req, start),
		size:    req.Size,
		tracker: NewProgressTracker(r.progressInterval),
		sink:    sink,
	}

	r.registry.Begin(t.id, t.name, req.Size)
	r.notify(ctx, t, StateReceived, nil)

	res, err := r.run(ctx, req, t, start)
	r.metrics.RecordTransfer(r.timeNow().Sub(start), err)

	if err != nil {
		r.logger.Error("transfer failed", err, "id", t.id, "name", t.name)
		r.transition(ctx, t, StateFailed, err)
		return nil, err
	}

	r.transition(ctx, t, StateCleaned, nil)
	return res, nil
}

func (r *Relay) run(ctx context.Context, req TransferRequest, t *transfer, start time.Time) (*TransferResult, error) {
	if err := r.validator.ValidateRequest(req); err != nil {
		return nil, err
	}

	if err := r.ensureStore(ctx); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create staging dir: %w", ErrDownloadFailed, err)
	}

	t.key = UniqueName(t.name)
	staged := filepath.Join(r.stagingDir, t.key)
	defer r.cleanup(staged, t)

	r.transition(ctx, t, StateDownloading, nil)
	size, err := r.download(ctx, req.Source, staged, t)
	if err != nil {
		return nil, err
	}
	t.size = size
	r.transition(ctx, t, StateDownloaded, nil)

	cls := Classify(t.name)

	r.transition(ctx, t, StateUploading, nil)
	record, err := r.upload(ctx, staged, cls.MimeType, t)
	if err != nil {
		return nil, err
	}
	r.registry.SetKey(t.id, record.Key)
	r.transition(ctx, t, StateUploaded, nil)

	link, err := r.link(ctx, record.Key, r.linkExpiration, cls.Streamable)
	if err != nil {
		return nil, err
	}

	elapsed := r.timeNow().Sub(start)
	res := &TransferResult{
		ID:             t.id,
		Name:           t.name,
		Object:         *record,
		Link:           *link,
		Classification: cls,
		Elapsed:        elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		res.AverageSpeed = float64(record.Size) / secs
	}

	r.notifyEvent(ctx, TransferEvent{
		ID:         t.id,
		Name:       t.name,
		Key:        record.Key,
		State:      StateLinkGenerated,
		Size:       record.Size,
		URL:        link.URL,
		Streamable: link.Streamable,
		At:         r.timeNow(),
	})
	r.registry.Transition(t.id, StateLinkGenerated, nil)

	r.logger.Info("transfer completed", "id", t.id, "key", record.Key, "size", record.Size, "elapsed", elapsed)

	return res, nil
}

func (r *Relay) download(ctx context.Context, src Source, staged string, t *transfer) (int64, error) {
	f, err := os.Create(staged)
	if err != nil {
		return 0, fmt.Errorf("%w: create staging file: %w", ErrDownloadFailed, err)
	}

	t.tracker.Start(PhaseDownload)

	err = r.bridge.Run(ctx, func(ctx context.Context, report func(n int64)) error {
		var last int64
		return src.Download(ctx, f, func(current, _ int64) {
			report(current - last)
			last = current
		})
	}, r.progress(t, PhaseDownload, t.size))

	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	info, err := os.Stat(staged)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	r.flush(t, PhaseDownload, info.Size())
	return info.Size(), nil
}

func (r *Relay) upload(ctx context.Context, staged, contentType string, t *transfer) (*ObjectRecord, error) {
	t.tracker.Start(PhaseUpload)

	var record *ObjectRecord
	err := r.bridge.Run(ctx, func(ctx context.Context, report func(n int64)) error {
		var err error
		record, err = r.store.Upload(ctx, staged, t.key, contentType, report)
		return err
	}, r.progress(t, PhaseUpload, t.size))

	if err != nil {
		return nil, uploadError(err)
	}

	r.flush(t, PhaseUpload, record.Size)
	return record, nil
}

// Link generates a fresh access link for an existing object.
func (r *Relay) Link(ctx context.Context, key string, expires time.Duration, stream bool) (*AccessLink, error) {
	if err := validateObjectKey(key); err != nil {
		return nil, err
	}

	if err := r.ensureStore(ctx); err != nil {
		return nil, err
	}

	return r.link(ctx, key, expires, stream)
}

func (r *Relay) link(ctx context.Context, key string, expires time.Duration, stream bool) (*AccessLink, error) {
	if expires <= 0 {
		expires = r.linkExpiration
	}

	var url string
	err := r.bridge.Run(ctx, func(ctx context.Context, _ func(int64)) error {
		var err error
		url, err = r.store.PresignedURL(ctx, key, expires, stream)
		return err
	}, nil)

	if err != nil {
		if errors.Is(err, ErrLinkGenerationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLinkGenerationFailed, err)
	}

	return &AccessLink{
		URL:        url,
		ExpiresAt:  r.timeNow().Add(expires),
		Expires:    expires,
		Streamable: stream,
	}, nil
}

// Fetch downloads a stored object to localPath, reporting download progress
// to sink.
func (r *Relay) Fetch(ctx context.Context, key, localPath string, sink ProgressSink) (*ObjectInfo, error) {
	if err := validateObjectKey(key); err != nil {
		return nil, err
	}

	if err := r.ensureStore(ctx); err != nil {
		return nil, err
	}

	var total int64 = -1
	info, ok := r.store.HeadInfo(ctx, key)
	if ok {
		total = info.Size
	}

	t := &transfer{
		key:     key,
		size:    total,
		tracker: NewProgressTracker(r.progressInterval),
		sink:    sink,
	}
	t.tracker.Start(PhaseDownload)

	var written int64
	onProgress := r.progress(t, PhaseDownload, total)
	err := r.bridge.Run(ctx, func(ctx context.Context, report func(n int64)) error {
		return r.store.Download(ctx, key, localPath, report)
	}, func(n int64) {
		written = n
		onProgress(n)
	})
	if err != nil {
		return nil, err
	}

	r.flush(t, PhaseDownload, written)

	if !ok {
		info = &ObjectInfo{Size: written, ContentType: Classify(key).MimeType}
	}
	return info, nil
}

// HeadInfo returns the object metadata, or false when it is unknown.
func (r *Relay) HeadInfo(ctx context.Context, key string) (*ObjectInfo, bool) {
	if r.store == nil || validateObjectKey(key) != nil {
		return nil, false
	}
	return r.store.HeadInfo(ctx, key)
}

func (r *Relay) Delete(ctx context.Context, key string) error {
	if err := validateObjectKey(key); err != nil {
		return err
	}

	if err := r.ensureStore(ctx); err != nil {
		return err
	}

	return r.store.Delete(ctx, key)
}

// ValidateStore checks the store connection again, even if it was validated
// before.
func (r *Relay) ValidateStore(ctx context.Context) error {
	if r.store == nil {
		return ErrStoreNotConfigured
	}

	r.storeMu.Lock()
	r.storeValidated = false
	r.storeMu.Unlock()

	return r.ensureStore(ctx)
}

func (r *Relay) ensureStore(ctx context.Context) error {
	if r.store == nil {
		return ErrStoreNotConfigured
	}

	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	if r.storeValidated {
		return nil
	}

	validator, ok := r.store.(StoreValidator)
	if !ok {
		r.storeValidated = true
		return nil
	}

	if err := validator.Validate(ctx); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	r.storeValidated = true
	return nil
}

// progress returns the bridge callback for one leg: it feeds the tracker and
// forwards emitted events to the sink.
func (r *Relay) progress(t *transfer, phase Phase, total int64) func(int64) {
	var recorded int64
	return func(current int64) {
		r.metrics.RecordBytes(phase, current-recorded)
		recorded = current

		if t.id != "" {
			r.registry.Progress(t.id, current)
		}

		if ev, ok := t.tracker.Report(current, total, phase); ok && t.sink != nil {
			t.sink(ev)
		}
	}
}

// flush emits the final event of a leg if the tracker has not sent it yet.
func (r *Relay) flush(t *transfer, phase Phase, size int64) {
	if ev, ok := t.tracker.Report(size, size, phase); ok && t.sink != nil {
		t.sink(ev)
	}
}

func (r *Relay) cleanup(staged string, t *transfer) {
	if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Error("CleanupWarning: failed to remove staged file", err, "id", t.id, "path", staged)
	}
}

func (r *Relay) transition(ctx context.Context, t *transfer, state TransferState, cause error) {
	r.registry.Transition(t.id, state, cause)
	r.notify(ctx, t, state, cause)
}

func (r *Relay) notify(ctx context.Context, t *transfer, state TransferState, cause error) {
	ev := TransferEvent{
		ID:    t.id,
		Name:  t.name,
		Key:   t.key,
		State: state,
		Size:  t.size,
		At:    r.timeNow(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	r.notifyEvent(ctx, ev)
}

func (r *Relay) notifyEvent(ctx context.Context, ev TransferEvent) {
	if err := r.notifier.Notify(ctx, ev); err != nil {
		r.logger.Error("transfer notification failed", err, "id", ev.ID, "state", ev.State)
	}
}

// uploadError keeps store failures inside the upload error taxonomy.
func uploadError(err error) error {
	switch {
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrObjectTooLarge),
		errors.Is(err, ErrPartialUploadFailure),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrInvalidKey):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
