package filerelay

import (
	"sort"
	"sync"
	"time"

	gerrors "github.com/goliatone/go-errors"
)

// TransferState is the lifecycle stage of a relayed file.
type TransferState string

const (
	StateReceived      TransferState = "received"
	StateDownloading   TransferState = "downloading"
	StateDownloaded    TransferState = "downloaded"
	StateUploading     TransferState = "uploading"
	StateUploaded      TransferState = "uploaded"
	StateLinkGenerated TransferState = "link_generated"
	StateCleaned       TransferState = "cleaned"
	StateFailed        TransferState = "failed"
)

// Terminal reports whether no further transition can follow.
func (s TransferState) Terminal() bool {
	return s == StateCleaned || s == StateFailed
}

var ErrTransferNotFound = gerrors.New("transfer not found", gerrors.CategoryNotFound).
	WithCode(404).
	WithTextCode("TRANSFER_NOT_FOUND")

// TransferRecord is the registry view of one transfer.
type TransferRecord struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Key         string        `json:"key,omitempty"`
	Size        int64         `json:"size"`
	State       TransferState `json:"state"`
	Transferred int64         `json:"transferred"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// TransferRegistry is an in-memory record of transfers, kept for ttl after
// their last update.
type TransferRegistry struct {
	mu        sync.RWMutex
	ttl       time.Duration
	records   map[string]*TransferRecord
	nextSweep time.Time
	timeNowFn func() time.Time
}

// NewTransferRegistry creates a registry with the provided TTL (or DefaultRegistryTTL if <= 0).
func NewTransferRegistry(ttl time.Duration) *TransferRegistry {
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}

	return &TransferRegistry{
		ttl:       ttl,
		records:   make(map[string]*TransferRecord),
		timeNowFn: time.Now,
	}
}

func (r *TransferRegistry) timeNow() time.Time {
	if r.timeNowFn != nil {
		return r.timeNowFn()
	}
	return time.Now()
}

// Begin registers a new transfer in the received state.
func (r *TransferRegistry) Begin(id, name string, size int64) (*TransferRecord, error) {
	if id == "" {
		return nil, gerrors.NewValidation("transfer record invalid",
			gerrors.FieldError{
				Field:   "id",
				Message: "cannot be empty",
			},
		)
	}

	now := r.timeNow()
	rec := &TransferRecord{
		ID:        id,
		Name:      name,
		Size:      size,
		State:     StateReceived,
		StartedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// expired records are swept at most once per ttl
	if !now.Before(r.nextSweep) {
		r.removeExpired(now)
		r.nextSweep = now.Add(r.ttl)
	}

	r.records[id] = rec
	copied := *rec
	return &copied, nil
}

// Transition moves a transfer to state. Records already in a terminal state
// are left untouched.
func (r *TransferRegistry) Transition(id string, state TransferState, cause error) (*TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrTransferNotFound
	}

	if rec.State.Terminal() {
		copied := *rec
		return &copied, nil
	}

	now := r.timeNow()
	rec.State = state
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(r.ttl)
	if cause != nil {
		rec.Error = cause.Error()
	}

	copied := *rec
	return &copied, nil
}

// SetKey records the object key once it is known.
func (r *TransferRegistry) SetKey(id, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok {
		rec.Key = key
	}
}

// Progress records the bytes moved in the current phase.
func (r *TransferRegistry) Progress(id string, transferred int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok {
		rec.Transferred = transferred
		rec.UpdatedAt = r.timeNow()
	}
}

// Get returns a copy of the record if it exists and has not expired.
func (r *TransferRegistry) Get(id string) (*TransferRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || r.timeNow().After(rec.ExpiresAt) {
		return nil, false
	}

	copied := *rec
	return &copied, true
}

// Snapshot lists live records, oldest first.
func (r *TransferRegistry) Snapshot() []TransferRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.timeNow()
	out := make([]TransferRecord, 0, len(r.records))
	for _, rec := range r.records {
		if now.After(rec.ExpiresAt) {
			continue
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	return out
}

// CleanupExpired removes expired records and returns their IDs. Begin also
// sweeps expired records, so calling it is only needed to release memory
// sooner.
func (r *TransferRegistry) CleanupExpired(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeExpired(now)
}

func (r *TransferRegistry) removeExpired(now time.Time) []string {
	var removed []string
	for id, rec := range r.records {
		if !now.Before(rec.ExpiresAt) {
			delete(r.records, id)
			removed = append(removed, id)
		}
	}

	return removed
}
