package embedder

import (
	"crypto/sha1"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

const (
	fallbackEncoding = "cl100k_base"
	bpeFetchTimeout  = 30 * time.Second
)

var installBpeLoader sync.Once

// TokenCounter reports how many tokens a text costs against the provider's request cap.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	return estimateTokens(text)
}

// NewTokenCounter returns a tiktoken counter for model, falling back to a rune-based
// estimate when the encoding cannot be loaded.
func NewTokenCounter(model string, logger *slog.Logger) TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	installBpeLoader.Do(func() {
		tiktoken.SetBpeLoader(newBoundedBpeLoader(bpeFetchTimeout))
	})
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, estimating tokens", "model", model, "error", err)
		return estimateCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

// boundedBpeLoader downloads remote BPE rank files with a deadline into tiktoken's disk cache,
// then lets the library's own loader parse them from there.
type boundedBpeLoader struct {
	client *http.Client
	parse  tiktoken.BpeLoader
}

func newBoundedBpeLoader(timeout time.Duration) *boundedBpeLoader {
	return &boundedBpeLoader{
		client: &http.Client{Timeout: timeout},
		parse:  tiktoken.NewDefaultBpeLoader(),
	}
}

func (l *boundedBpeLoader) LoadTiktokenBpe(file string) (map[string]int, error) {
	if strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://") {
		if err := l.prefetch(file); err != nil {
			return nil, err
		}
	}
	return l.parse.LoadTiktokenBpe(file)
}

func (l *boundedBpeLoader) prefetch(url string) error {
	dir := bpeCacheDir()
	path := filepath.Join(dir, fmt.Sprintf("%x", sha1.Sum([]byte(url))))
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	resp, err := l.client.Get(url)
	if err != nil {
		return fmt.Errorf("fetch bpe file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch bpe file: unexpected status %d", resp.StatusCode)
	}
	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read bpe file: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bpe cache dir: %w", err)
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := os.WriteFile(tmp, contents, 0o644); err != nil {
		return fmt.Errorf("write bpe cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store bpe cache: %w", err)
	}
	return nil
}

// bpeCacheDir resolves the same directory tiktoken reads cached rank files from.
func bpeCacheDir() string {
	for _, key := range []string{"TIKTOKEN_CACHE_DIR", "DATA_GYM_CACHE_DIR"} {
		if dir := strings.TrimSpace(os.Getenv(key)); dir != "" {
			return dir
		}
	}
	return filepath.Join(os.TempDir(), "data-gym-cache")
}

// estimateTokens provides a rough, upper-biased token count.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	words := len(strings.Fields(text))
	byRunes := (runes + 1) / 2
	if byRunes < words {
		return words
	}
	return byRunes
}
