package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/store"
	"github.com/Devansh1501S/Chat-Sphere/internal/store/storetest"
)

// TestStoreConformance runs the shared suite against a real database.
// Point TEST_DB_DSN at a throwaway database; every subtest truncates it.
func TestStoreConformance(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	s, err := Open(dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		_, err := s.db.ExecContext(context.Background(),
			`TRUNCATE users, conversations, participants, messages, friend_requests
             RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return s
	})
}
