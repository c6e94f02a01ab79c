// internal/words/words.go
package words

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/config"
	"github.com/xkilldash9x/burstline/internal/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes caps the word-source response body.
const maxResponseBytes = 4 << 20

// Source yields the word pool for a run. It is called once per run.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// New picks the file source when words.file is set, otherwise Datamuse.
func New(cfg config.WordsConfig, logger *zap.Logger) Source {
	if cfg.File != "" {
		return &FileSource{Path: cfg.File, logger: logger.Named("words")}
	}
	return NewDatamuse(cfg.Endpoint, cfg.Keyword, cfg.Timeout, logger)
}

// Datamuse queries the "means like" endpoint of the Datamuse API.
type Datamuse struct {
	endpoint string
	keyword  string
	client   *http.Client
	logger   *zap.Logger
}

// NewDatamuse builds a client for endpoint (e.g. https://api.datamuse.com/).
func NewDatamuse(endpoint, keyword string, timeout time.Duration, logger *zap.Logger) *Datamuse {
	return &Datamuse{
		endpoint: endpoint,
		keyword:  keyword,
		client:   &http.Client{Timeout: timeout, Transport: newTransport()},
		logger:   logger.Named("words"),
	}
}

// newTransport tunes the dial and handshake timeouts for a single small API call.
func newTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 15 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

type datamuseWord struct {
	Word  string `json:"word"`
	Score int    `json:"score"`
}

// Fetch issues GET {endpoint}/words?ml={keyword} and returns the words in
// response order.
func (d *Datamuse) Fetch(ctx context.Context) ([]string, error) {
	u, err := url.JoinPath(d.endpoint, "words")
	if err != nil {
		return nil, fmt.Errorf("invalid word source endpoint %q: %w", d.endpoint, err)
	}
	u += "?" + url.Values{"ml": {d.keyword}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build word source request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("word source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("word source returned HTTP %d", resp.StatusCode)
	}

	var entries []datamuseWord
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode word source response: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Word)
	}
	out = query.Normalize(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no words related to %q", query.ErrEmptyPool, d.keyword)
	}

	d.logger.Info("Fetched word pool.",
		zap.String("keyword", d.keyword),
		zap.Int("words", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

// FileSource reads one term per line. Blank lines and lines starting with
// '#' are ignored.
type FileSource struct {
	Path   string
	logger *zap.Logger
}

// NewFileSource returns a source backed by a newline-delimited file.
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{Path: path, logger: logger.Named("words")}
}

func (f *FileSource) Fetch(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word file: %w", err)
	}
	defer file.Close()

	var out []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word file: %w", err)
	}

	out = query.Normalize(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s has no words", query.ErrEmptyPool, f.Path)
	}
	if f.logger != nil {
		f.logger.Info("Loaded word pool.", zap.String("path", f.Path), zap.Int("words", len(out)))
	}
	return out, nil
}
