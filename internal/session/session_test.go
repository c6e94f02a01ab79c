package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/config"
)

func sampleState(user string) *browser.State {
	return &browser.State{
		Cookies: []browser.Cookie{{
			Name: "_U", Value: user, Domain: ".bing.com", Path: "/", Expires: 1893456000,
			HTTPOnly: true, Secure: true, SameSite: "None",
		}},
		Origins: []browser.OriginState{{
			Origin:       "https://www.bing.com",
			LocalStorage: []browser.NameValue{{Name: "theme", Value: "dark"}},
		}},
	}
}

// -- Shared Contract --

func TestStoresRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(zap.NewNop()),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			keyA := filepath.Join(dir, name, "storage-user1.json")
			keyB := filepath.Join(dir, name, "storage-user2.json")

			require.NoError(t, s.Save(ctx, keyA, sampleState("alice")))
			require.NoError(t, s.Save(ctx, keyB, sampleState("bob")))

			got, err := s.Load(ctx, keyA)
			require.NoError(t, err)
			if diff := cmp.Diff(sampleState("alice"), got); diff != "" {
				t.Errorf("state for user1 mismatch (-want +got):\n%s", diff)
			}
			got, err = s.Load(ctx, keyB)
			require.NoError(t, err)
			assert.Equal(t, "bob", got.Cookies[0].Value)

			_, err = s.Load(ctx, filepath.Join(dir, name, "missing.json"))
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, s.Save(ctx, keyA, &browser.State{}), browser.ErrEmptyState)
			assert.ErrorIs(t, s.Save(ctx, keyA, nil), browser.ErrEmptyState)
		})
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	in := sampleState("alice")
	require.NoError(t, m.Save(ctx, "k", in))
	in.Cookies[0].Value = "mallory"

	got, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Cookies[0].Value)
	got.Cookies[0].Value = "eve"

	again, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Cookies[0].Value)
	assert.Equal(t, []string{"k"}, m.Keys())
}

func TestMemoryStoreConcurrentIdentities(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	var wg sync.WaitGroup
	for _, user := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Save(ctx, user, sampleState(user)))
		}()
	}
	wg.Wait()
	for _, user := range []string{"a", "b", "c", "d"} {
		got, err := m.Load(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, user, got.Cookies[0].Value)
	}
}

// -- File Store --

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("writes owner-only storageState JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "storage-user1.json")
		require.NoError(t, NewFileStore(zap.NewNop()).Save(ctx, path, sampleState("alice")))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"httpOnly": true`)
		assert.Contains(t, string(data), `"localStorage"`)

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary files are cleaned up")
	})

	t.Run("overwrite replaces the document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storage-user1.json")
		fs := NewFileStore(zap.NewNop())
		require.NoError(t, fs.Save(ctx, path, sampleState("alice")))
		require.NoError(t, fs.Save(ctx, path, sampleState("alice-2")))
		got, err := fs.Load(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "alice-2", got.Cookies[0].Value)
	})

	t.Run("empty document is rejected on load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storage-user1.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"cookies":[],"origins":[]}`), 0o600))
		_, err := NewFileStore(zap.NewNop()).Load(ctx, path)
		assert.ErrorIs(t, err, browser.ErrEmptyState)
	})

	t.Run("corrupt document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storage-user1.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"cookies":`), 0o600))
		_, err := NewFileStore(zap.NewNop()).Load(ctx, path)
		assert.ErrorContains(t, err, "failed to decode session state")
	})
}

// -- Postgres Store --

func TestNewPostgresStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgresStore(context.Background(), mockPool, zap.NewNop())
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should create the table", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		mockPool.ExpectExec(regexp.QuoteMeta(schemaSQL)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		_, err = NewPostgresStore(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	mockPool.ExpectExec(regexp.QuoteMeta(schemaSQL)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	s, err := NewPostgresStore(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestPostgresSave(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert the encoded state", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		data, err := browser.EncodeState(sampleState("alice"))
		require.NoError(t, err)

		mockPool.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("storage-user1.json", data).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Save(ctx, "storage-user1.json", sampleState("alice")))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate exec errors", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("k", pgxmock.AnyArg()).
			WillReturnError(dbErr)

		err := s.Save(ctx, "k", sampleState("alice"))
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should not touch the database for an empty state", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		assert.ErrorIs(t, s.Save(ctx, "k", &browser.State{}), browser.ErrEmptyState)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("should decode the stored state", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		data, err := browser.EncodeState(sampleState("bob"))
		require.NoError(t, err)

		mockPool.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("storage-user2.json").
			WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(data))

		got, err := s.Load(ctx, "storage-user2.json")
		require.NoError(t, err)
		if diff := cmp.Diff(sampleState("bob"), got); diff != "" {
			t.Errorf("loaded state mismatch (-want +got):\n%s", diff)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should map no rows to ErrNotFound", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

// -- Backend Selection --

func TestOpen(t *testing.T) {
	s, closeFn, err := Open(context.Background(), config.SessionStoreConfig{Backend: config.StoreBackendFile}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &FileStore{}, s)

	_, _, err = Open(context.Background(), config.SessionStoreConfig{Backend: "redis"}, zap.NewNop())
	assert.ErrorContains(t, err, "redis")
}
