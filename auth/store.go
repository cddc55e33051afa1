package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	msalcache "github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/rs/zerolog"
	"github.com/viant/afs"
)

// Store persists the opaque MSAL token cache at an afs URL (plain paths work
// too). It plugs into the public client as its cache hooks: Replace loads the
// serialized blob before the provider reads its cache, Export writes it back
// after mutations. Persistence is best-effort; a missing or unwritable
// location degrades to in-memory operation with a logged warning and never
// surfaces an error to callers.
type Store struct {
	fs     afs.Service
	url    string
	logger zerolog.Logger

	mu       sync.Mutex
	lastSum  [sha256.Size]byte
	hasState bool
}

// NewStore creates a store backed by cacheURL. No I/O happens until the
// provider first reads or writes its cache.
func NewStore(cacheURL string, logger zerolog.Logger) *Store {
	return &Store{
		fs:     afs.New(),
		url:    expandPath(cacheURL),
		logger: logger.With().Str("component", "tokencache").Logger(),
	}
}

// URL returns the resolved cache location.
func (s *Store) URL() string { return s.url }

// Probe logs the startup state of the cache location. It never fails.
func (s *Store) Probe(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.fs.Exists(ctx, s.url)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.url).Msg("unable to probe token cache")
		return
	}
	if !ok {
		s.logger.Debug().Str("url", s.url).Msg("no token cache yet, starting empty")
		return
	}
	s.logger.Debug().Str("url", s.url).Msg("token cache found")
}

// Replace loads the persisted blob into the provider cache. Missing,
// unreadable or empty state leaves the cache empty and is never an error.
func (s *Store) Replace(ctx context.Context, cache msalcache.Unmarshaler, _ msalcache.ReplaceHints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok, err := s.fs.Exists(ctx, s.url); err != nil || !ok {
		return nil
	}
	rc, err := s.fs.OpenURL(ctx, s.url)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.url).Msg("unable to read token cache")
		return nil
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.url).Msg("unable to read token cache")
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := cache.Unmarshal(data); err != nil {
		s.logger.Warn().Err(err).Str("url", s.url).Msg("token cache is not deserializable, starting empty")
		return nil
	}
	s.lastSum, s.hasState = sha256.Sum256(data), true
	return nil
}

// Export writes the serialized cache back, skipping the write when the state
// is unchanged since the last save. Parent directories are created as needed.
// Write failures are logged and swallowed; the in-memory cache stays
// authoritative for the rest of the process lifetime.
func (s *Store) Export(ctx context.Context, cache msalcache.Marshaler, _ msalcache.ExportHints) error {
	data, err := cache.Marshal()
	if err != nil {
		s.logger.Warn().Err(err).Msg("unable to serialize token cache")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := sha256.Sum256(data)
	if s.hasState && sum == s.lastSum {
		return nil
	}
	if err := s.fs.Upload(ctx, s.url, 0o600, bytes.NewReader(data)); err != nil {
		s.logger.Warn().Err(err).Str("url", s.url).Msg("unable to persist token cache")
		return nil
	}
	s.lastSum, s.hasState = sum, true
	return nil
}

// expandPath resolves $VARS and a leading ~ so cache locations from config
// behave like shell paths.
func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}
