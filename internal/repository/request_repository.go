package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/tire-request-service/internal/domain"
)

// ErrVersionConflict reports a concurrent writer won the update race.
var ErrVersionConflict = errors.New("request version conflict")

// RequestFilter captures listing parameters for live requests.
type RequestFilter struct {
	SubmitterID   *string
	Statuses      []domain.RequestStatus
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
	Limit         int
	Offset        int
}

// DeletedFilter captures listing parameters for soft-deleted requests.
type DeletedFilter struct {
	SubmitterID *string
	DeletedBy   *string
	Statuses    []domain.RequestStatus
	DeletedFrom *time.Time
	DeletedTo   *time.Time
	SortBy      string // "deletedAt" (default) or "submittedAt"
	SortOrder   string // "desc" (default) or "asc"
	Page        int
	Limit       int
}

// RequestRepository encapsulates request persistence.
type RequestRepository interface {
	Create(ctx context.Context, request *domain.Request) error
	// Update persists the full row guarded by the previous event sequence;
	// it returns ErrVersionConflict when another writer got there first.
	Update(ctx context.Context, request *domain.Request, prevSeq int64) error
	GetByID(ctx context.Context, id int64) (*domain.Request, error)
	ListActive(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
	ListDeleted(ctx context.Context, filter DeletedFilter) ([]domain.Request, int, error)
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates the Postgres-backed repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, submitter_id, vehicle_id, tire_size, quantity, reason, status,
       supervisor_id, technical_manager_id, engineer_id, customer_officer_id,
       supervisor_note, technical_manager_note, engineer_note, completion_note, order_note,
       submitted_at, supervisor_decided_at, technical_manager_decided_at, engineer_decided_at,
       completed_at, order_placed_at,
       is_deleted, deleted_by, deleted_at, restored_by, restored_at,
       event_seq, updated_at`

func (r *requestRepository) Create(ctx context.Context, request *domain.Request) error {
	const query = `
        INSERT INTO tire_requests (submitter_id, vehicle_id, tire_size, quantity, reason, status, event_seq)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, submitted_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		request.SubmitterID,
		request.VehicleID,
		request.TireSize,
		request.Quantity,
		request.Reason,
		request.Status,
		request.EventSeq,
	).Scan(&request.ID, &request.SubmittedAt, &request.UpdatedAt)
}

func (r *requestRepository) Update(ctx context.Context, request *domain.Request, prevSeq int64) error {
	const query = `
        UPDATE tire_requests SET status=$1,
            supervisor_id=$2, technical_manager_id=$3, engineer_id=$4, customer_officer_id=$5,
            supervisor_note=$6, technical_manager_note=$7, engineer_note=$8, completion_note=$9, order_note=$10,
            supervisor_decided_at=$11, technical_manager_decided_at=$12, engineer_decided_at=$13,
            completed_at=$14, order_placed_at=$15,
            is_deleted=$16, deleted_by=$17, deleted_at=$18, restored_by=$19, restored_at=$20,
            event_seq=$21, updated_at=NOW()
        WHERE id=$22 AND event_seq=$23`
	cmd, err := r.pool.Exec(ctx, query,
		request.Status,
		request.SupervisorID,
		request.TechnicalManagerID,
		request.EngineerID,
		request.CustomerOfficerID,
		request.SupervisorNote,
		request.TechnicalManagerNote,
		request.EngineerNote,
		request.CompletionNote,
		request.OrderNote,
		request.SupervisorDecidedAt,
		request.TechnicalManagerDecidedAt,
		request.EngineerDecidedAt,
		request.CompletedAt,
		request.OrderPlacedAt,
		request.IsDeleted,
		request.DeletedBy,
		request.DeletedAt,
		request.RestoredBy,
		request.RestoredAt,
		request.EventSeq,
		request.ID,
		prevSeq,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id int64) (*domain.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM tire_requests WHERE id=$1`, requestColumns)
	var request domain.Request
	if err := r.pool.QueryRow(ctx, query, id).Scan(scanTargets(&request)...); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) ListActive(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	clauses := []string{"is_deleted = FALSE"}
	args := []any{}

	if filter.SubmitterID != nil {
		args = append(args, *filter.SubmitterID)
		clauses = append(clauses, fmt.Sprintf("submitter_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SubmittedFrom != nil {
		args = append(args, *filter.SubmittedFrom)
		clauses = append(clauses, fmt.Sprintf("submitted_at >= $%d", len(args)))
	}
	if filter.SubmittedTo != nil {
		args = append(args, *filter.SubmittedTo)
		clauses = append(clauses, fmt.Sprintf("submitted_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tire_requests WHERE %s ORDER BY submitted_at DESC, id DESC LIMIT %d OFFSET %d`,
		requestColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepository) ListDeleted(ctx context.Context, filter DeletedFilter) ([]domain.Request, int, error) {
	clauses := []string{"is_deleted = TRUE"}
	args := []any{}

	if filter.SubmitterID != nil {
		args = append(args, *filter.SubmitterID)
		clauses = append(clauses, fmt.Sprintf("submitter_id=$%d", len(args)))
	}
	if filter.DeletedBy != nil {
		args = append(args, *filter.DeletedBy)
		clauses = append(clauses, fmt.Sprintf("deleted_by=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DeletedFrom != nil {
		args = append(args, *filter.DeletedFrom)
		clauses = append(clauses, fmt.Sprintf("deleted_at >= $%d", len(args)))
	}
	if filter.DeletedTo != nil {
		args = append(args, *filter.DeletedTo)
		clauses = append(clauses, fmt.Sprintf("deleted_at <= $%d", len(args)))
	}

	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tire_requests WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortColumn := "deleted_at"
	if filter.SortBy == "submittedAt" {
		sortColumn = "submitted_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	// Ties broken by id so pagination is stable under concurrent deletes.
	query := fmt.Sprintf(`SELECT %s FROM tire_requests WHERE %s ORDER BY %s %s, id %s LIMIT %d OFFSET %d`,
		requestColumns, where, sortColumn, direction, direction, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	requests, err := scanRequests(rows)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func scanTargets(request *domain.Request) []any {
	return []any{
		&request.ID,
		&request.SubmitterID,
		&request.VehicleID,
		&request.TireSize,
		&request.Quantity,
		&request.Reason,
		&request.Status,
		&request.SupervisorID,
		&request.TechnicalManagerID,
		&request.EngineerID,
		&request.CustomerOfficerID,
		&request.SupervisorNote,
		&request.TechnicalManagerNote,
		&request.EngineerNote,
		&request.CompletionNote,
		&request.OrderNote,
		&request.SubmittedAt,
		&request.SupervisorDecidedAt,
		&request.TechnicalManagerDecidedAt,
		&request.EngineerDecidedAt,
		&request.CompletedAt,
		&request.OrderPlacedAt,
		&request.IsDeleted,
		&request.DeletedBy,
		&request.DeletedAt,
		&request.RestoredBy,
		&request.RestoredAt,
		&request.EventSeq,
		&request.UpdatedAt,
	}
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	var result []domain.Request
	for rows.Next() {
		var request domain.Request
		if err := rows.Scan(scanTargets(&request)...); err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	return result, rows.Err()
}
