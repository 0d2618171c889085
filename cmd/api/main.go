package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"marketflow/auth"
	"marketflow/db"
	"marketflow/httpapi"
	"marketflow/listing"
	"marketflow/request"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	opts := db.PoolOptions{MaxConnIdleTime: 5 * time.Minute}
	if raw := os.Getenv("DB_MAX_CONNS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			log.Fatalf("DB_MAX_CONNS must be a positive integer, got %q", raw)
		}
		opts.MaxConns = int32(n)
	}
	pool, err := db.NewPool(ctx, connString, opts)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		if err := db.Migrate(ctx, pool, dir); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	authService := auth.NewService(auth.NewRepository(pool), jwtSecret)
	listingService := listing.NewService(listing.NewRepository(pool))
	requestService := request.NewService(request.NewRepository(pool), listingService)

	server := httpapi.NewServer(authService, listingService, requestService, authService)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
