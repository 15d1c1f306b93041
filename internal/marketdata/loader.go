package marketdata

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/pkg/retry"
)

// transientRetry wraps a single residual-set download in a short,
// fixed-delay retry of its own: a blip in the transport (a dropped
// connection, a 502) shouldn't cost a whole residual-narrowing round,
// which has a much coarser delay and a different job (shrinking the
// still-missing ticker set, not papering over the same request).
var transientRetry = retry.Config{Attempts: 3, Delay: 500 * time.Millisecond}

// LoaderConfig controls cache location, TTL, and residual retry behavior.
type LoaderConfig struct {
	CacheDir     string
	ValidityTTL  time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	EnableRetry  bool
	Period       string
}

// Loader implements C3: cache-or-download with residual retry.
type Loader struct {
	cfg      LoaderConfig
	provider Provider
	log      zerolog.Logger
}

// NewLoader builds a Loader over the given download provider.
func NewLoader(cfg LoaderConfig, provider Provider, log zerolog.Logger) *Loader {
	return &Loader{cfg: cfg, provider: provider, log: log.With().Str("component", "marketdata").Logger()}
}

func (l *Loader) snapshotPath() string {
	return filepath.Join(l.cfg.CacheDir, "bars_snapshot.json.gz")
}

// Load returns the full union-universe bar history for tickers, serving
// a fresh-enough on-disk snapshot when available, else downloading with
// residual retry and persisting the result atomically.
func (l *Loader) Load(ctx context.Context, tickers []string) (BarHistory, error) {
	if valid, history, err := l.loadFromCache(); err != nil {
		l.log.Warn().Err(err).Msg("failed to read market data cache, will re-download")
	} else if valid {
		l.log.Info().Int("tickers", len(history.Series)).Msg("loaded market data from cache")
		return history, nil
	}

	l.log.Info().Int("tickers", len(tickers)).Msg("downloading market data")
	history, err := l.downloadWithResidualRetry(ctx, tickers)
	if err != nil {
		return BarHistory{}, err
	}

	if err := l.saveToCache(history); err != nil {
		l.log.Warn().Err(err).Msg("failed to persist market data cache")
	}

	return history, nil
}

// downloadWithResidualRetry implements §4.3's retry policy: each attempt
// downloads only the still-missing residual set, results are
// concatenated column-wise, and the loop fails only if zero tickers were
// ever retrieved.
func (l *Loader) downloadWithResidualRetry(ctx context.Context, tickers []string) (BarHistory, error) {
	remaining := dedupe(tickers)
	combined := BarHistory{Series: make(map[string][]PricePoint)}

	maxAttempts := 1
	if l.cfg.EnableRetry {
		maxAttempts = l.cfg.MaxRetries
		if maxAttempts < 1 {
			maxAttempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		l.log.Info().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Int("tickers", len(remaining)).
			Msg("downloading market data attempt")

		var data BarHistory
		err := retry.Do(ctx, transientRetry, l.log, "market data download", func(ctx context.Context) error {
			var downloadErr error
			data, downloadErr = l.provider.Download(ctx, remaining, l.cfg.Period)
			return downloadErr
		})
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				l.log.Warn().Err(err).Int("attempt", attempt).Msg("download attempt failed, retrying")
				if waitErr := sleepCtx(ctx, l.cfg.RetryDelay); waitErr != nil {
					return BarHistory{}, waitErr
				}
				continue
			}
			l.log.Error().Err(err).Int("attempts", maxAttempts).Msg("download failed after all attempts")
			break
		}

		combined = merge(combined, data)
		missing := missingTickers(remaining, data)

		if len(missing) == 0 {
			return combined, nil
		}

		if attempt < maxAttempts {
			preview := missing
			if len(preview) > 10 {
				preview = preview[:10]
			}
			l.log.Warn().
				Int("attempt", attempt).
				Int("missing", len(missing)).
				Strs("preview", preview).
				Msg("tickers missing, retrying residual set")
			remaining = missing
			if waitErr := sleepCtx(ctx, l.cfg.RetryDelay); waitErr != nil {
				return BarHistory{}, waitErr
			}
			continue
		}

		preview := missing
		if len(preview) > 20 {
			preview = preview[:20]
		}
		l.log.Error().
			Int("missing", len(missing)).
			Int("attempts", maxAttempts).
			Strs("preview", preview).
			Msg("tickers still missing after final attempt")
	}

	if len(combined.Series) == 0 {
		if lastErr != nil {
			return BarHistory{}, fmt.Errorf("%w: %v", ErrDataUnavailable, lastErr)
		}
		return BarHistory{}, ErrDataUnavailable
	}

	return combined, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type cacheEnvelope struct {
	Series map[string][]PricePoint `json:"series"`
}

func (l *Loader) loadFromCache() (bool, BarHistory, error) {
	path := l.snapshotPath()
	info, err := os.Stat(path)
	if err != nil {
		return false, BarHistory{}, nil
	}

	age := time.Since(info.ModTime())
	if age >= l.cfg.ValidityTTL {
		l.log.Debug().Dur("age", age).Msg("cache expired")
		return false, BarHistory{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, BarHistory{}, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false, BarHistory{}, fmt.Errorf("failed to open gzip reader: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return false, BarHistory{}, fmt.Errorf("failed to read cache contents: %w", err)
	}

	var env cacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, BarHistory{}, fmt.Errorf("failed to decode cache contents: %w", err)
	}

	return true, BarHistory{Series: env.Series}, nil
}

// saveToCache writes the snapshot atomically: write to a temp file in
// the same directory, then rename over the final path.
func (l *Loader) saveToCache(history BarHistory) error {
	if err := os.MkdirAll(l.cfg.CacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	raw, err := json.Marshal(cacheEnvelope{Series: history.Series})
	if err != nil {
		return fmt.Errorf("failed to marshal cache contents: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return fmt.Errorf("failed to gzip cache contents: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}

	tmp, err := os.CreateTemp(l.cfg.CacheDir, "bars_snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpPath, l.snapshotPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp cache file into place: %w", err)
	}

	return nil
}

// ClearCache removes the on-disk snapshot, if any.
func (l *Loader) ClearCache() error {
	err := os.Remove(l.snapshotPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
