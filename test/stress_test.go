package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"marketflow/auth"
	"marketflow/listing"
	"marketflow/request"
	"marketflow/test/actors"
	"marketflow/test/chaos"
	"marketflow/test/infra"
	"marketflow/test/oracles"
)

var (
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// TestDuplicateGuardUnderConcurrency hammers the create path from many
// goroutines and asserts the partial unique index admits exactly one pending
// request per (requester, resource) pair.
func TestDuplicateGuardUnderConcurrency(t *testing.T) {
	pool, teardown := setupDatabase(t)
	defer teardown()

	ctx := context.Background()
	seed := mustSeed(t, ctx, pool)

	svc := newRequestService(pool)

	var created, duplicates atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			_, err := svc.Create(gctx, request.CreateParams{
				Kind:        request.KindApplication,
				ResourceID:  seed.jobID,
				RequesterID: seed.requesterID,
				Message:     "concurrent applicant",
			})
			switch {
			case err == nil:
				created.Add(1)
				return nil
			case errors.Is(err, request.ErrDuplicatePending):
				duplicates.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("creator errored: %v", err)
	}

	if created.Load() != 1 {
		t.Fatalf("expected exactly 1 successful create, got %d (duplicates %d)", created.Load(), duplicates.Load())
	}
	if duplicates.Load() != int32(*flConcurrency-1) {
		t.Fatalf("expected %d duplicate rejections, got %d", *flConcurrency-1, duplicates.Load())
	}

	var pending int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM requests WHERE requester_id=$1 AND resource_id=$2 AND status='pending'`,
		seed.requesterID, seed.jobID).Scan(&pending); err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("oracle failed: %d pending rows survived for the pair", pending)
	}
}

// TestTransitionRaceSingleWinner races an owner approval against a requester
// cancellation on the same pending request; the compare-and-set write must
// let exactly one through.
func TestTransitionRaceSingleWinner(t *testing.T) {
	pool, teardown := setupDatabase(t)
	defer teardown()

	ctx := context.Background()
	seed := mustSeed(t, ctx, pool)
	svc := newRequestService(pool)

	for round := 0; round < 10; round++ {
		created, err := svc.Create(ctx, request.CreateParams{
			Kind:        request.KindApplication,
			ResourceID:  seed.jobID,
			RequesterID: seed.requesterID,
		})
		if err != nil {
			t.Fatalf("round %d create: %v", round, err)
		}

		var wins atomic.Int32
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			_, err := svc.Transition(gctx, request.TransitionParams{
				RequestID: created.ID, ActorID: seed.ownerID, ActorRole: auth.RoleMember, Target: request.StatusApproved,
			})
			if err == nil {
				wins.Add(1)
				return nil
			}
			if errors.Is(err, request.ErrInvalidTransition) || errors.Is(err, request.ErrForbidden) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			_, err := svc.Transition(gctx, request.TransitionParams{
				RequestID: created.ID, ActorID: seed.requesterID, ActorRole: auth.RoleMember, Target: request.StatusCancelled,
			})
			if err == nil {
				wins.Add(1)
				return nil
			}
			if errors.Is(err, request.ErrInvalidTransition) || errors.Is(err, request.ErrForbidden) {
				return nil
			}
			return err
		})
		if err := g.Wait(); err != nil {
			t.Fatalf("round %d transition errored: %v", round, err)
		}

		if wins.Load() != 1 {
			t.Fatalf("round %d: expected exactly one winning transition, got %d", round, wins.Load())
		}

		var status string
		if err := pool.QueryRow(ctx, `SELECT status FROM requests WHERE id=$1`, created.ID).Scan(&status); err != nil {
			t.Fatalf("round %d status: %v", round, err)
		}
		if status != "approved" && status != "cancelled" {
			t.Fatalf("round %d: unexpected terminal status %s", round, status)
		}

		// Clear the pair for the next round.
		if _, err := pool.Exec(ctx, `DELETE FROM requests WHERE id=$1`, created.ID); err != nil {
			t.Fatalf("round %d cleanup: %v", round, err)
		}
	}
}

// TestLifecycleUnderChurn runs the full cast of actors against one listing
// for a few seconds, optionally with connection chaos, then checks every SQL
// oracle over the surviving rows.
func TestLifecycleUnderChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("churn test skipped in short mode")
	}

	pool, teardown := setupDatabase(t)
	defer teardown()

	ctx := context.Background()
	seed := mustSeed(t, ctx, pool)

	withChaos := os.Getenv("CHAOS") != ""
	stop := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	run := func(f func() error) {
		g.Go(func() error {
			err := f()
			if err != nil && withChaos {
				// Killed backends surface as transient exec errors; the
				// oracles below are the real verdict.
				t.Logf("actor stopped early: %v", err)
				return nil
			}
			return err
		})
	}

	run(func() error { return actors.Creator(gctx, pool, seed.jobID, seed.requesterID, seed.ownerID, stop) })
	run(func() error { return actors.Resolver(gctx, pool, seed.jobID, stop) })
	run(func() error { return actors.Canceller(gctx, pool, seed.requesterID, stop) })
	run(func() error { return actors.Completer(gctx, pool, seed.jobID, stop) })
	run(func() error { return actors.Deleter(gctx, pool, seed.requesterID, stop) })
	run(func() error { return actors.Viewer(gctx, pool, seed.jobID, stop) })
	if withChaos {
		go chaos.TerminateRandomBackend(gctx, pool, stop)
	}

	time.Sleep(5 * time.Second)
	close(stop)
	if err := g.Wait(); err != nil {
		t.Fatalf("actor errored: %v", err)
	}

	name, sample, err := oracles.Run(ctx, pool)
	if err != nil {
		t.Fatalf("oracle run: %v", err)
	}
	if name != "" {
		t.Fatalf("oracle %s failed, sample violation: %s", name, sample)
	}
}

func newRequestService(pool *pgxpool.Pool) *request.Service {
	listingSvc := listing.NewService(listing.NewRepository(pool))
	return request.NewService(request.NewRepository(pool), listingSvc)
}

func setupDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("TEST_PG_DSN") != "":
		dsn = os.Getenv("TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if !dockerAvailable(ctx) {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				cancel()
				t.Skipf("no Docker and no local PostgreSQL: %v", err)
			}
			pgC = &infra.PGContainer{}
			break
		}
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		if err != nil {
			cancel()
			t.Fatalf("start postgres: %v", err)
		}
	}

	pool, dbTeardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		_ = pgC.Terminate(context.Background())
		cancel()
		t.Fatalf("apply migrations: %v", err)
	}

	return pool, func() {
		pool.Close()
		if err := dbTeardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
		_ = pgC.Terminate(context.Background())
		cancel()
	}
}

type seedIDs struct {
	ownerID     string
	requesterID string
	jobID       string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	suffix := time.Now().UnixNano()

	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name) VALUES ($1,$2) RETURNING id`,
		fmt.Sprintf("owner%d@example.com", suffix), "Olivia Owner").Scan(&s.ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name) VALUES ($1,$2) RETURNING id`,
		fmt.Sprintf("req%d@example.com", suffix), "Riley Requester").Scan(&s.requesterID); err != nil {
		t.Fatalf("seed requester: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO listings (owner_id, kind, title, status) VALUES ($1,'job','Stress Job','active') RETURNING id`,
		s.ownerID).Scan(&s.jobID); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return s
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
