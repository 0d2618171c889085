package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketflow/pagination"
)

var (
	// ErrNotFound signals the request row does not exist.
	ErrNotFound = errors.New("request: not found")
	// ErrDuplicatePending signals an unresolved request already exists for
	// the same requester/resource pair.
	ErrDuplicatePending = errors.New("request: pending request already exists for this resource")
	// ErrResourceNotFound signals the referenced resource vanished.
	ErrResourceNotFound = errors.New("request: resource not found")
)

// PendingUpdate carries the requester-editable fields. Applied only while
// the row is still pending.
type PendingUpdate struct {
	Message          *string
	AttachmentURL    *string
	AttachmentFileID *string
	StartDate        *time.Time
	EndDate          *time.Time
	PriceTotalCents  *int64
}

type Repository interface {
	Insert(ctx context.Context, req Request) (Request, error)
	Get(ctx context.Context, id string) (Request, error)
	UpdateStatus(ctx context.Context, id string, from []Status, to Status, note *string) (Request, error)
	UpdatePending(ctx context.Context, id string, upd PendingUpdate) (Request, error)
	Delete(ctx context.Context, id string, statuses []Status) (bool, error)
	ListForRequester(ctx context.Context, userID string, kind Kind, page pagination.Page) ([]Summary, int, error)
	ListForOwner(ctx context.Context, userID string, kind Kind, page pagination.Page) ([]Summary, int, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, kind, resource_id, requester_id, owner_id, status, message,
    attachment_url, attachment_file_id, start_date, end_date, unit_rate_cents, price_total_cents,
    created_at, updated_at`

// Insert creates the row in a single statement. The partial unique index on
// (requester_id, resource_id) WHERE status='pending' makes the duplicate
// check and the insert one atomic unit; the 23505 it raises under a race is
// translated to ErrDuplicatePending.
func (r *PGRepository) Insert(ctx context.Context, req Request) (Request, error) {
	const query = `
        INSERT INTO requests (id, kind, resource_id, requester_id, owner_id, status, message,
            attachment_url, attachment_file_id, start_date, end_date, unit_rate_cents, price_total_cents)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING ` + requestColumns

	row := r.pool.QueryRow(ctx, query,
		req.ID,
		req.Kind,
		req.ResourceID,
		req.RequesterID,
		req.OwnerID,
		req.Status,
		req.Message,
		req.AttachmentURL,
		req.AttachmentFileID,
		req.StartDate,
		req.EndDate,
		req.UnitRateCents,
		req.PriceTotalCents,
	)

	created, err := scanRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Request{}, ErrDuplicatePending
			case "23503":
				return Request{}, ErrResourceNotFound
			}
		}
		return Request{}, fmt.Errorf("request: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Request, error) {
	const query = `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: get: %w", err)
	}
	return req, nil
}

// UpdateStatus performs an atomic compare-and-set: the row moves to the
// target status only if its current status is one of from. pgx.ErrNoRows is
// returned untranslated so callers can tell "gone" from "lost the race".
func (r *PGRepository) UpdateStatus(ctx context.Context, id string, from []Status, to Status, note *string) (Request, error) {
	const query = `
		UPDATE requests
		SET status = $2,
		    message = COALESCE($3, message),
		    updated_at = now()
		WHERE id = $1 AND status = ANY($4)
		RETURNING ` + requestColumns

	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, to, note, fromStrs))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, pgx.ErrNoRows
		}
		return Request{}, fmt.Errorf("request: update status: %w", err)
	}
	return req, nil
}

// UpdatePending rewrites the requester-editable fields while the row is
// still pending. The status predicate rides the UPDATE itself.
func (r *PGRepository) UpdatePending(ctx context.Context, id string, upd PendingUpdate) (Request, error) {
	const query = `
		UPDATE requests
		SET message = $2,
		    attachment_url = $3,
		    attachment_file_id = $4,
		    start_date = $5,
		    end_date = $6,
		    price_total_cents = $7,
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query,
		id,
		upd.Message,
		upd.AttachmentURL,
		upd.AttachmentFileID,
		upd.StartDate,
		upd.EndDate,
		upd.PriceTotalCents,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, pgx.ErrNoRows
		}
		return Request{}, fmt.Errorf("request: update pending: %w", err)
	}
	return req, nil
}

// Delete removes the row if its status is in statuses; nil statuses means
// any status (admin path). Returns whether a row was deleted.
func (r *PGRepository) Delete(ctx context.Context, id string, statuses []Status) (bool, error) {
	query := `DELETE FROM requests WHERE id = $1`
	args := []any{id}
	if statuses != nil {
		strs := make([]string, len(statuses))
		for i, s := range statuses {
			strs[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, strs)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("request: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) ListForRequester(ctx context.Context, userID string, kind Kind, page pagination.Page) ([]Summary, int, error) {
	const query = `
		SELECT r.id, r.kind, r.resource_id, r.requester_id, r.owner_id, r.status, r.message,
		       r.attachment_url, r.attachment_file_id, r.start_date, r.end_date, r.unit_rate_cents, r.price_total_cents,
		       r.created_at, r.updated_at,
		       l.title, u.full_name, u.email
		FROM requests r
		JOIN listings l ON l.id = r.resource_id
		JOIN users u ON u.id = r.owner_id
		WHERE r.requester_id = $1 AND r.kind = $2
		ORDER BY r.created_at DESC
		LIMIT $3 OFFSET $4
	`
	const countQuery = `SELECT COUNT(*) FROM requests WHERE requester_id = $1 AND kind = $2`

	return r.listSummaries(ctx, query, countQuery, userID, kind, page)
}

func (r *PGRepository) ListForOwner(ctx context.Context, userID string, kind Kind, page pagination.Page) ([]Summary, int, error) {
	const query = `
		SELECT r.id, r.kind, r.resource_id, r.requester_id, r.owner_id, r.status, r.message,
		       r.attachment_url, r.attachment_file_id, r.start_date, r.end_date, r.unit_rate_cents, r.price_total_cents,
		       r.created_at, r.updated_at,
		       l.title, u.full_name, u.email
		FROM requests r
		JOIN listings l ON l.id = r.resource_id
		JOIN users u ON u.id = r.requester_id
		WHERE r.owner_id = $1 AND r.kind = $2
		ORDER BY r.created_at DESC
		LIMIT $3 OFFSET $4
	`
	const countQuery = `SELECT COUNT(*) FROM requests WHERE owner_id = $1 AND kind = $2`

	return r.listSummaries(ctx, query, countQuery, userID, kind, page)
}

func (r *PGRepository) listSummaries(ctx context.Context, query, countQuery, userID string, kind Kind, page pagination.Page) ([]Summary, int, error) {
	rows, err := r.pool.Query(ctx, query, userID, kind, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("request: list: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(
			&s.ID,
			&s.Kind,
			&s.ResourceID,
			&s.RequesterID,
			&s.OwnerID,
			&s.Status,
			&s.Message,
			&s.AttachmentURL,
			&s.AttachmentFileID,
			&s.StartDate,
			&s.EndDate,
			&s.UnitRateCents,
			&s.PriceTotalCents,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.ResourceTitle,
			&s.CounterpartName,
			&s.CounterpartEmail,
		); err != nil {
			return nil, 0, fmt.Errorf("request: scan summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("request: iterate: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, userID, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("request: count: %w", err)
	}

	return out, total, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	return req, row.Scan(
		&req.ID,
		&req.Kind,
		&req.ResourceID,
		&req.RequesterID,
		&req.OwnerID,
		&req.Status,
		&req.Message,
		&req.AttachmentURL,
		&req.AttachmentFileID,
		&req.StartDate,
		&req.EndDate,
		&req.UnitRateCents,
		&req.PriceTotalCents,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
}
