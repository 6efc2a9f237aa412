// Package retention bounds on-disk clip storage. Saved clips form an
// ordered registry keyed by strictly increasing sequence number; once the
// configured limit is exceeded the lowest-sequence (oldest) clips are
// deleted from storage and dropped from the registry.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/config"
)

// Manager owns saved clip files from Store until eviction. Store is the
// only mutator besides the startup Rebuild.
type Manager struct {
	mu       sync.Mutex
	dir      string
	maxFiles int
	registry []clip.File // ordered by Sequence ascending
	nextSeq  int64
	repo     Repository
	logger   *slog.Logger
}

// NewManager creates a retention manager over cfg.ClipDir(). The clip
// directory is created if missing.
func NewManager(cfg *config.Config, repo Repository, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.ClipDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}
	return &Manager{
		dir:      cfg.ClipDir(),
		maxFiles: cfg.MaxVideoFiles,
		nextSeq:  1,
		repo:     repo,
		logger:   logger,
	}, nil
}

// Rebuild reconstructs the registry from a directory scan. Clip filenames
// encode trigger time and duration, so ordering survives a restart by
// filename alone; files the agent did not produce are left untouched. The
// catalog is reconciled to the scan afterwards.
func (m *Manager) Rebuild(ctx context.Context) error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to scan clip directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, ok := clip.ParseFilename(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	// Zero-padded timestamps make lexical order chronological.
	sort.Strings(names)

	m.mu.Lock()
	m.registry = m.registry[:0]
	m.nextSeq = 1
	for _, name := range names {
		trigger, duration, _ := clip.ParseFilename(name)
		path := filepath.Join(m.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		m.registry = append(m.registry, clip.File{
			ID:          uuid.NewString(),
			Path:        path,
			TriggerTime: trigger,
			Duration:    duration,
			Sequence:    m.nextSeq,
			CreatedAt:   info.ModTime().UTC(),
		})
		m.nextSeq++
	}
	evicted := m.evictLocked()
	registry := make([]clip.File, len(m.registry))
	copy(registry, m.registry)
	m.mu.Unlock()

	for _, c := range evicted {
		m.logger.Info("evicting clip beyond limit during rebuild", "path", c.Path, "seq", c.Sequence)
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to delete evicted clip", "path", c.Path, "error", err)
		}
	}

	if m.repo != nil {
		if err := m.repo.DeleteAllClips(ctx); err != nil {
			return fmt.Errorf("failed to reset clip catalog: %w", err)
		}
		for i := range registry {
			if err := m.repo.InsertClip(ctx, &registry[i]); err != nil {
				return fmt.Errorf("failed to catalog clip %s: %w", registry[i].Path, err)
			}
		}
	}

	m.logger.Info("retention registry rebuilt", "clips", len(registry))
	return nil
}

// Store registers a freshly extracted clip, assigning it the next sequence
// number, then evicts oldest-first until the registry is back within the
// limit. Eviction deletes the file from storage and the catalog.
func (m *Manager) Store(ctx context.Context, c *clip.File) error {
	m.mu.Lock()
	c.Sequence = m.nextSeq
	m.nextSeq++
	m.registry = append(m.registry, *c)
	evicted := m.evictLocked()
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.InsertClip(ctx, c); err != nil {
			m.logger.Warn("failed to catalog clip", "path", c.Path, "error", err)
		}
	}

	for _, old := range evicted {
		m.logger.Info("evicting oldest clip", "path", old.Path, "seq", old.Sequence)
		if err := os.Remove(old.Path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to delete evicted clip", "path", old.Path, "error", err)
		}
		if m.repo != nil {
			if err := m.repo.DeleteClip(ctx, old.ID); err != nil {
				m.logger.Warn("failed to uncatalog evicted clip", "id", old.ID, "error", err)
			}
		}
	}
	return nil
}

// evictLocked trims the registry to the limit and returns what was cut.
// Caller holds m.mu.
func (m *Manager) evictLocked() []clip.File {
	if len(m.registry) <= m.maxFiles {
		return nil
	}
	n := len(m.registry) - m.maxFiles
	evicted := make([]clip.File, n)
	copy(evicted, m.registry[:n])
	m.registry = append(m.registry[:0], m.registry[n:]...)
	return evicted
}

// List returns the registry ordered by sequence, oldest first.
func (m *Manager) List() []clip.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]clip.File, len(m.registry))
	copy(out, m.registry)
	return out
}

// Get looks a clip up by ID.
func (m *Manager) Get(id string) (clip.File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.registry {
		if c.ID == id {
			return c, true
		}
	}
	return clip.File{}, false
}

// Count returns the registry size.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry)
}
