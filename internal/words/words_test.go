// internal/words/words_test.go
package words

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/burstline/internal/config"
	"github.com/xkilldash9x/burstline/internal/query"
)

// -- Datamuse --

func TestDatamuseFetch(t *testing.T) {
	t.Run("decodes words in response order", func(t *testing.T) {
		var gotPath, gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.Query().Get("ml")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"word":"sea","score":90},{"word":"marine","score":80},{"word":"sea","score":10},{"word":"tide","score":5}]`))
		}))
		defer srv.Close()

		core, logs := observer.New(zap.InfoLevel)
		d := NewDatamuse(srv.URL+"/", "ocean life", time.Second, zap.New(core))

		got, err := d.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"sea", "marine", "tide"}, got)
		assert.Equal(t, "/words", gotPath)
		assert.Equal(t, "ocean life", gotQuery)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, int64(3), logs.All()[0].ContextMap()["words"])
	})

	t.Run("empty result is an empty pool", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		_, err := NewDatamuse(srv.URL, "zzzz", time.Second, zap.NewNop()).Fetch(context.Background())
		assert.ErrorIs(t, err, query.ErrEmptyPool)
	})

	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewDatamuse(srv.URL, "ocean", time.Second, zap.NewNop()).Fetch(context.Background())
		assert.ErrorContains(t, err, "HTTP 429")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"word":`))
		}))
		defer srv.Close()

		_, err := NewDatamuse(srv.URL, "ocean", time.Second, zap.NewNop()).Fetch(context.Background())
		assert.ErrorContains(t, err, "failed to decode")
	})

	t.Run("client timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := NewDatamuse(srv.URL, "ocean", 20*time.Millisecond, zap.NewNop()).Fetch(context.Background())
		assert.ErrorContains(t, err, "word source request failed")
	})
}

// -- File Source --

func TestFileSource(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads one word per line", func(t *testing.T) {
		path := filepath.Join(dir, "words.txt")
		require.NoError(t, os.WriteFile(path, []byte("# seeds\nocean\n\n sea \nocean\ntide\n"), 0o644))

		got, err := NewFileSource(path, zap.NewNop()).Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"ocean", "sea", "tide"}, got)
	})

	t.Run("file of comments is empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		require.NoError(t, os.WriteFile(path, []byte("# nothing\n\n"), 0o644))

		_, err := NewFileSource(path, zap.NewNop()).Fetch(context.Background())
		assert.ErrorIs(t, err, query.ErrEmptyPool)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(dir, "nope.txt"), zap.NewNop()).Fetch(context.Background())
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestNewPicksSource(t *testing.T) {
	cfg := config.NewDefaultConfig().Words
	cfg.Keyword = "ocean"
	assert.IsType(t, &Datamuse{}, New(cfg, zap.NewNop()))

	cfg.File = "words.txt"
	assert.IsType(t, &FileSource{}, New(cfg, zap.NewNop()))
}
