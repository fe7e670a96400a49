package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/events"
)

// MemoryRequestRepository is an in-memory RequestRepository used by tests and
// when no Postgres DSN is configured.
type MemoryRequestRepository struct {
	mu       sync.RWMutex
	nextID   int64
	requests map[int64]domain.Request
}

// NewMemoryRequestRepository creates an empty store.
func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{nextID: 1, requests: make(map[int64]domain.Request)}
}

func (r *MemoryRequestRepository) Create(ctx context.Context, request *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	request.ID = r.nextID
	r.nextID++
	now := time.Now()
	if request.SubmittedAt.IsZero() {
		request.SubmittedAt = now
	}
	request.UpdatedAt = now
	r.requests[request.ID] = *request
	return nil
}

func (r *MemoryRequestRepository) Update(ctx context.Context, request *domain.Request, prevSeq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[request.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.EventSeq != prevSeq {
		return ErrVersionConflict
	}
	request.UpdatedAt = time.Now()
	r.requests[request.ID] = *request
	return nil
}

func (r *MemoryRequestRepository) GetByID(ctx context.Context, id int64) (*domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	request, ok := r.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := request
	return &copied, nil
}

func (r *MemoryRequestRepository) ListActive(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Request
	for _, request := range r.requests {
		if request.IsDeleted {
			continue
		}
		if filter.SubmitterID != nil && request.SubmitterID != *filter.SubmitterID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, request.Status) {
			continue
		}
		if filter.SubmittedFrom != nil && request.SubmittedAt.Before(*filter.SubmittedFrom) {
			continue
		}
		if filter.SubmittedTo != nil && request.SubmittedAt.After(*filter.SubmittedTo) {
			continue
		}
		result = append(result, request)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})

	return paginate(result, filter.Limit, filter.Offset), nil
}

func (r *MemoryRequestRepository) ListDeleted(ctx context.Context, filter DeletedFilter) ([]domain.Request, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Request
	for _, request := range r.requests {
		if !request.IsDeleted {
			continue
		}
		if filter.SubmitterID != nil && request.SubmitterID != *filter.SubmitterID {
			continue
		}
		if filter.DeletedBy != nil && (request.DeletedBy == nil || *request.DeletedBy != *filter.DeletedBy) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, request.Status) {
			continue
		}
		if filter.DeletedFrom != nil && (request.DeletedAt == nil || request.DeletedAt.Before(*filter.DeletedFrom)) {
			continue
		}
		if filter.DeletedTo != nil && (request.DeletedAt == nil || request.DeletedAt.After(*filter.DeletedTo)) {
			continue
		}
		result = append(result, request)
	}

	asc := strings.EqualFold(filter.SortOrder, "asc")
	bySubmitted := filter.SortBy == "submittedAt"
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		var ta, tb time.Time
		if bySubmitted {
			ta, tb = a.SubmittedAt, b.SubmittedAt
		} else {
			if a.DeletedAt != nil {
				ta = *a.DeletedAt
			}
			if b.DeletedAt != nil {
				tb = *b.DeletedAt
			}
		}
		if ta.Equal(tb) {
			if asc {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if asc {
			return ta.Before(tb)
		}
		return ta.After(tb)
	})

	total := len(result)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	return paginate(result, limit, (page-1)*limit), total, nil
}

func containsStatus(statuses []domain.RequestStatus, status domain.RequestStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func paginate(requests []domain.Request, limit, offset int) []domain.Request {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(requests) {
		return []domain.Request{}
	}
	end := offset + limit
	if end > len(requests) {
		end = len(requests)
	}
	return requests[offset:end]
}

// MemoryEventLog is an in-memory EventLogRepository.
type MemoryEventLog struct {
	mu   sync.RWMutex
	byID map[int64][]events.LifecycleEvent
}

// NewMemoryEventLog creates an empty log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{byID: make(map[int64][]events.LifecycleEvent)}
}

func (l *MemoryEventLog) Append(ctx context.Context, event events.LifecycleEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[event.RequestID] = append(l.byID[event.RequestID], event)
	return nil
}

func (l *MemoryEventLog) ListByRequest(ctx context.Context, requestID int64, limit, offset int) ([]events.LifecycleEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := l.byID[requestID]
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []events.LifecycleEvent{}, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	out := make([]events.LifecycleEvent, end-offset)
	copy(out, entries[offset:end])
	return out, nil
}

// MemoryActorRepository is an in-memory ActorRepository seeded at startup.
type MemoryActorRepository struct {
	mu     sync.RWMutex
	actors map[string]domain.ActorRecord
}

// NewMemoryActorRepository creates a store with the given seed actors.
func NewMemoryActorRepository(seed []domain.ActorRecord) *MemoryActorRepository {
	actors := make(map[string]domain.ActorRecord, len(seed))
	for _, record := range seed {
		actors[record.ID] = record
	}
	return &MemoryActorRepository{actors: actors}
}

func (r *MemoryActorRepository) GetByID(ctx context.Context, id string) (*domain.ActorRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.actors[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := record
	return &copied, nil
}

func (r *MemoryActorRepository) GetByEmail(ctx context.Context, email string) (*domain.ActorRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, record := range r.actors {
		if strings.ToLower(record.Email) == email {
			copied := record
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}
