package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("listing: not found")
)

type Repository interface {
	Insert(ctx context.Context, l Listing) (Listing, error)
	Get(ctx context.Context, id string) (Listing, error)
	List(ctx context.Context, filters Filters) ([]Listing, int, error)
	UpdateStatus(ctx context.Context, id, ownerID string, status Status, admin bool) (Listing, error)
	Delete(ctx context.Context, id, ownerID string, admin bool) (bool, error)
	IncrementViews(ctx context.Context, id string) error
	AdjustApplicants(ctx context.Context, id string, delta int) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const listingColumns = `id, owner_id, kind, title, description, location, daily_rate_cents, status, applicants, views, created_at, updated_at`

func (r *PGRepository) Insert(ctx context.Context, l Listing) (Listing, error) {
	const query = `
        INSERT INTO listings (id, owner_id, kind, title, description, location, daily_rate_cents, status)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + listingColumns

	row := r.pool.QueryRow(ctx, query,
		l.ID,
		l.OwnerID,
		l.Kind,
		l.Title,
		l.Description,
		l.Location,
		l.DailyRateCents,
		l.Status,
	)

	created, err := scanListing(row)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: get: %w", err)
	}
	return l, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Listing, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	base := `SELECT ` + listingColumns + ` FROM listings`
	where := []string{"1=1"}
	args := []any{}

	if filters.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id=$%d", len(args)+1))
		args = append(args, filters.OwnerID)
	}
	if filters.Kind != "" && validKind(filters.Kind) {
		where = append(where, fmt.Sprintf("kind=$%d", len(args)+1))
		args = append(args, filters.Kind)
	}
	if filters.Status != "" && validStatus(filters.Status) {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	if filters.TitleQuery != "" {
		where = append(where, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filters.TitleQuery+"%")
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, whereClause, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing: query list: %w", err)
	}
	defer rows.Close()

	list := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("listing: scan: %w", err)
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing: iterate: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM listings" + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("listing: count list: %w", err)
	}

	return list, total, nil
}

// UpdateStatus changes listing status. Non-admin callers must own the row;
// the ownership predicate is part of the UPDATE so the check and write are
// one statement.
func (r *PGRepository) UpdateStatus(ctx context.Context, id, ownerID string, status Status, admin bool) (Listing, error) {
	query := `
		UPDATE listings
		SET status = $2, updated_at = now()
		WHERE id = $1`
	args := []any{id, status}
	if !admin {
		query += ` AND owner_id = $3`
		args = append(args, ownerID)
	}
	query += ` RETURNING ` + listingColumns

	l, err := scanListing(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: update status: %w", err)
	}
	return l, nil
}

func (r *PGRepository) Delete(ctx context.Context, id, ownerID string, admin bool) (bool, error) {
	query := `DELETE FROM listings WHERE id = $1`
	args := []any{id}
	if !admin {
		query += ` AND owner_id = $2`
		args = append(args, ownerID)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("listing: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementViews bumps the view counter. Lost increments under race are
// acceptable; callers ignore the error.
func (r *PGRepository) IncrementViews(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE listings SET views = views + 1 WHERE id = $1`, id)
	return err
}

// AdjustApplicants moves the applicant counter, clamped at zero.
func (r *PGRepository) AdjustApplicants(ctx context.Context, id string, delta int) error {
	_, err := r.pool.Exec(ctx, `UPDATE listings SET applicants = GREATEST(applicants + $2, 0) WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("listing: adjust applicants: %w", err)
	}
	return nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	return l, row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.Kind,
		&l.Title,
		&l.Description,
		&l.Location,
		&l.DailyRateCents,
		&l.Status,
		&l.Applicants,
		&l.Views,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
}
