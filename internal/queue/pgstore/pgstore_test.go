package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/linnemanlabs/erqueue/internal/postgres"
	"github.com/linnemanlabs/erqueue/internal/queue/pgstore"
	"github.com/linnemanlabs/erqueue/internal/queue/queuetest"
)

func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("ERQUEUE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ERQUEUE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	// Keep the sequence: numbers must stay unique across runs.
	if _, err := pool.Exec(ctx, `DELETE FROM queue_entries`); err != nil {
		t.Fatalf("clear queue: %v", err)
	}

	queuetest.RunStoreContract(t, s)
}
