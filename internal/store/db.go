package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// defaultMaxConns suits the feed workload: short point queries plus
// single-row toggle transactions that contend on post row locks, so a
// modest pool beats a large one.
const defaultMaxConns = 16

// Open dials Postgres through the pgx stdlib driver and verifies the
// connection before handing the pool back. Half the pool is kept warm;
// connections are recycled inside typical load-balancer idle windows.
func Open(ctx context.Context, databaseURL string, maxConns int) (*sql.DB, error) {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxIdleTime(2 * time.Minute)
	db.SetConnMaxLifetime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
