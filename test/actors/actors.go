package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Creator hammers the insert path for one (requester, resource) pair. The
// partial unique index is expected to reject all but one pending row at a
// time; 23505 is the normal outcome under contention.
func Creator(ctx context.Context, pool *pgxpool.Pool, resourceID, requesterID, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO requests (kind, resource_id, requester_id, owner_id, status)
                                  VALUES ('application', $1, $2, $3, 'pending')`, resourceID, requesterID, ownerID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// expected under contention
			} else if ctx.Err() == nil {
				return fmt.Errorf("creator insert: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Resolver plays the owner: it picks a pending request for the resource and
// approves or rejects it with a compare-and-set write.
func Resolver(ctx context.Context, pool *pgxpool.Pool, resourceID string, stop <-chan struct{}) error {
	targets := []string{"approved", "rejected"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		target := targets[rand.Intn(len(targets))]
		_, err := pool.Exec(ctx, `UPDATE requests SET status = $2, updated_at = now()
                                  WHERE id = (SELECT id FROM requests WHERE resource_id = $1 AND status = 'pending' LIMIT 1)
                                    AND status = 'pending'`, resourceID, target)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("resolver update: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Canceller plays the requester racing the owner: it cancels its own pending
// request with the same compare-and-set predicate the service uses.
func Canceller(ctx context.Context, pool *pgxpool.Pool, requesterID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `UPDATE requests SET status = 'cancelled', updated_at = now()
                                  WHERE id = (SELECT id FROM requests WHERE requester_id = $1 AND status = 'pending' LIMIT 1)
                                    AND status = 'pending'`, requesterID)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("canceller update: %w", err)
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

// Completer moves approved requests to completed, the only edge that leaves
// approved.
func Completer(ctx context.Context, pool *pgxpool.Pool, resourceID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `UPDATE requests SET status = 'completed', updated_at = now()
                                  WHERE id = (SELECT id FROM requests WHERE resource_id = $1 AND status = 'approved' LIMIT 1)
                                    AND status = 'approved'`, resourceID)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("completer update: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// Deleter clears resolved requests under the requester allow-list so the
// Creator can submit again, keeping the pair churning for the whole run.
func Deleter(ctx context.Context, pool *pgxpool.Pool, requesterID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `DELETE FROM requests
                                  WHERE requester_id = $1 AND status IN ('rejected','cancelled')`, requesterID)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("deleter: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

// Viewer bumps the listing view counter the way the read path does,
// exercising the non-negative counter invariant under load.
func Viewer(ctx context.Context, pool *pgxpool.Pool, resourceID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `UPDATE listings SET views = views + 1 WHERE id = $1`, resourceID)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("viewer: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}
