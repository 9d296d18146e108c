package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"battery-passport/internal/domain"
)

// StorageKey is the blob key holding queued status requests.
const StorageKey = "pendingBatteryStatusRequests"

// BlobStore is the small-blob persistence the queue relies on.
type BlobStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Queue keeps at most one pending lifecycle status request per battery.
type Queue struct {
	mu     sync.Mutex
	store  BlobStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewQueue creates a queue backed by store.
func NewQueue(store BlobStore, logger zerolog.Logger) *Queue {
	return &Queue{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "pending").Logger(),
	}
}

// Queue records status as the proposal for batteryID, replacing any earlier
// one. A blank id is ignored and returns nil.
func (q *Queue) Queue(ctx context.Context, batteryID string, status domain.LifecycleStatus) (*domain.PendingStatusRequest, error) {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return nil, nil
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown lifecycle status %q", status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readAll(ctx)
	if err != nil {
		return nil, err
	}
	next := domain.PendingStatusRequest{
		BatteryID:      id,
		ProposedStatus: status,
		CreatedAt:      q.now().UnixMilli(),
	}
	entries = append(without(entries, id), next)
	if err := q.writeAll(ctx, entries); err != nil {
		return nil, err
	}

	q.logger.Info().Str("battery", id).Str("status", string(status)).Msg("status change queued")
	return &next, nil
}

// Get returns the pending request for batteryID, or nil.
func (q *Queue) Get(ctx context.Context, batteryID string) (*domain.PendingStatusRequest, error) {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.BatteryID == id {
			return &entry, nil
		}
	}
	return nil, nil
}

// Clear drops the pending request for batteryID.
func (q *Queue) Clear(ctx context.Context, batteryID string) error {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readAll(ctx)
	if err != nil {
		return err
	}
	return q.writeAll(ctx, without(entries, id))
}

// List returns every pending request in queue order.
func (q *Queue) List(ctx context.Context) ([]domain.PendingStatusRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readAll(ctx)
}

// storedRequest is the lenient on-disk shape of a queue entry.
type storedRequest struct {
	BatteryID      any    `json:"batteryId"`
	ProposedStatus string `json:"proposedStatus"`
	CreatedAt      *int64 `json:"createdAt"`
}

// readAll loads the queue, treating malformed data as empty and dropping
// entries without an id or status.
func (q *Queue) readAll(ctx context.Context) ([]domain.PendingStatusRequest, error) {
	raw, ok, err := q.store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var stored []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		q.logger.Warn().Err(err).Msg("ignoring unreadable pending requests")
		return nil, nil
	}

	entries := make([]domain.PendingStatusRequest, 0, len(stored))
	for _, item := range stored {
		var entry storedRequest
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		id := idString(entry.BatteryID)
		if id == "" || entry.ProposedStatus == "" {
			continue
		}
		createdAt := q.now().UnixMilli()
		if entry.CreatedAt != nil {
			createdAt = *entry.CreatedAt
		}
		entries = append(entries, domain.PendingStatusRequest{
			BatteryID:      id,
			ProposedStatus: domain.LifecycleStatus(entry.ProposedStatus),
			CreatedAt:      createdAt,
		})
	}
	return entries, nil
}

func (q *Queue) writeAll(ctx context.Context, entries []domain.PendingStatusRequest) error {
	if entries == nil {
		entries = []domain.PendingStatusRequest{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := q.store.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("save pending requests: %w", err)
	}
	return nil
}

func without(entries []domain.PendingStatusRequest, id string) []domain.PendingStatusRequest {
	out := make([]domain.PendingStatusRequest, 0, len(entries))
	for _, entry := range entries {
		if entry.BatteryID != id {
			out = append(out, entry)
		}
	}
	return out
}

// idString accepts ids stored as strings or numbers.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}
