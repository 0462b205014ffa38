package config

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Store holds the live configuration shared between the control plane and
// the capture loop. When Path is set, updates are persisted.
type Store struct {
	Path string

	mu        sync.RWMutex
	cfg       Config
	overrides func(c *Config)
	mtime     time.Time // of Path when last loaded
	watching  atomic.Bool
}

// NewStore seeds the store with c. The modification time of path is taken
// here so that a Watch started later still sees edits made in between.
func NewStore(c *Config, path string) *Store {
	s := &Store{Path: path, cfg: *c}
	if path != "" {
		if st, err := os.Stat(path); err == nil {
			s.mtime = st.ModTime()
		}
	}
	return s
}

// SetOverrides installs fn, which is applied to the configuration now and to
// every copy reloaded from disk, so settings given on the command line
// survive edits of the file.
func (s *Store) SetOverrides(fn func(c *Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = fn
	if fn != nil {
		fn(&s.cfg)
	}
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies fn to a copy of the configuration, stores it and returns
// the names of the settings that changed. A store's own saves are not
// reported back by Watch.
func (s *Store) Update(fn func(c *Config)) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	next := s.cfg
	fn(&next)
	s.cfg = next

	changed := Changed(&prev, &next)
	if len(changed) > 0 && s.Path != "" {
		if err := Save(s.Path, &next); err != nil {
			log.Warn().Err(err).Str("path", s.Path).Msg("config save failed")
		} else if st, err := os.Stat(s.Path); err == nil {
			s.mtime = st.ModTime()
		}
	}
	return changed
}

// Replace swaps in c wholesale, returning the changed setting names.
func (s *Store) Replace(c *Config) []string {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = *c
	s.mu.Unlock()
	return Changed(&prev, c)
}

// Reload reads Path again, applies the overrides and swaps the result in.
func (s *Store) Reload() ([]string, error) {
	c, err := Load(s.Path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	fn := s.overrides
	s.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
	return s.Replace(c), nil
}

// Watch polls the file at Path and, when it is modified, reloads it and
// calls fn once with the names of the settings that changed. Reloads that
// change nothing are not reported. It returns when ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration, fn func(changed []string)) {
	if s.Path == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.watching.Store(true)
	defer s.watching.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.modified() {
				continue
			}
			changed, err := s.Reload()
			if err != nil {
				log.Warn().Err(err).Str("path", s.Path).Msg("config reload failed")
				continue
			}
			if len(changed) == 0 {
				continue
			}
			log.Info().Strs("settings", changed).Msg("config changed on disk")
			fn(changed)
		}
	}
}

// modified reports whether Path changed since it was last loaded or saved.
func (s *Store) modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := os.Stat(s.Path)
	if err != nil || st.ModTime().Equal(s.mtime) {
		return false
	}
	s.mtime = st.ModTime()
	return true
}
