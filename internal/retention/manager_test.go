package retention

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/db"
)

func setupManager(t *testing.T, maxFiles int) (*Manager, Repository, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{DataDir: dir, MaxVideoFiles: maxFiles}

	database, err := db.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := NewRepository(database.Conn())
	m, err := NewManager(cfg, repo, slog.Default())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, repo, cfg.ClipDir()
}

func writeClip(t *testing.T, dir string, trigger, duration float64) *clip.File {
	t.Helper()
	path := filepath.Join(dir, clip.Filename(trigger, duration))
	if err := os.WriteFile(path, []byte("clip"), 0644); err != nil {
		t.Fatal(err)
	}
	return &clip.File{
		ID:          uuid.NewString(),
		Path:        path,
		TriggerTime: trigger,
		Duration:    duration,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestManager_StoreAssignsIncreasingSequence(t *testing.T) {
	m, _, dir := setupManager(t, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c := writeClip(t, dir, float64(100+i), 6)
		if err := m.Store(ctx, c); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	clips := m.List()
	for i := 1; i < len(clips); i++ {
		if clips[i].Sequence <= clips[i-1].Sequence {
			t.Errorf("sequence not strictly increasing: %d then %d",
				clips[i-1].Sequence, clips[i].Sequence)
		}
	}
}

func TestManager_EvictsOldestBeyondLimit(t *testing.T) {
	m, repo, dir := setupManager(t, 2)
	ctx := context.Background()

	first := writeClip(t, dir, 100, 6)
	second := writeClip(t, dir, 200, 6)
	third := writeClip(t, dir, 300, 6)
	for _, c := range []*clip.File{first, second, third} {
		if err := m.Store(ctx, c); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
	if _, ok := m.Get(first.ID); ok {
		t.Error("oldest clip still present in registry after eviction")
	}
	if _, err := os.Stat(first.Path); !os.IsNotExist(err) {
		t.Error("oldest clip file not deleted from storage")
	}
	if _, err := os.Stat(third.Path); err != nil {
		t.Errorf("newest clip file missing: %v", err)
	}

	cataloged, err := repo.ListClips(ctx)
	if err != nil {
		t.Fatalf("ListClips() error = %v", err)
	}
	if len(cataloged) != 2 {
		t.Errorf("catalog has %d clips, want 2", len(cataloged))
	}
	for _, c := range cataloged {
		if c.ID == first.ID {
			t.Error("evicted clip still cataloged")
		}
	}
}

func TestManager_CountNeverExceedsLimit(t *testing.T) {
	m, _, dir := setupManager(t, 3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c := writeClip(t, dir, float64(1000+i), 4)
		if err := m.Store(ctx, c); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if m.Count() > 3 {
			t.Fatalf("Count() = %d exceeds limit after %d stores", m.Count(), i+1)
		}
	}
}

func TestManager_RebuildFromFilenames(t *testing.T) {
	m, repo, dir := setupManager(t, 10)
	ctx := context.Background()

	// Files written out of order; the filename encodes the ordering.
	writeClip(t, dir, 300, 6)
	writeClip(t, dir, 100, 6)
	writeClip(t, dir, 200, 6)
	// Foreign files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	clips := m.List()
	if len(clips) != 3 {
		t.Fatalf("rebuilt registry has %d clips, want 3", len(clips))
	}
	wantTriggers := []float64{100, 200, 300}
	for i, c := range clips {
		if c.TriggerTime != wantTriggers[i] {
			t.Errorf("clip %d trigger = %g, want %g", i, c.TriggerTime, wantTriggers[i])
		}
		if c.Sequence != int64(i+1) {
			t.Errorf("clip %d sequence = %d, want %d", i, c.Sequence, i+1)
		}
	}

	cataloged, err := repo.ListClips(ctx)
	if err != nil {
		t.Fatalf("ListClips() error = %v", err)
	}
	if len(cataloged) != 3 {
		t.Errorf("catalog has %d clips after rebuild, want 3", len(cataloged))
	}
}

func TestManager_RebuildEnforcesLimit(t *testing.T) {
	m, _, dir := setupManager(t, 2)

	for i := 0; i < 4; i++ {
		writeClip(t, dir, float64(100*(i+1)), 6)
	}

	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d after rebuild, want 2", m.Count())
	}
	clips := m.List()
	if clips[0].TriggerTime != 300 {
		t.Errorf("oldest surviving clip trigger = %g, want 300", clips[0].TriggerTime)
	}
	if _, err := os.Stat(filepath.Join(dir, clip.Filename(100, 6))); !os.IsNotExist(err) {
		t.Error("over-limit clip file not deleted during rebuild")
	}
}

func TestRepository_ConfigRoundTrip(t *testing.T) {
	_, repo, _ := setupManager(t, 2)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "missing"); err != nil || v != "" {
		t.Errorf("GetConfig(missing) = %q, %v, want empty", v, err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "secret"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "rotated"); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}
	v, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "rotated" {
		t.Errorf("GetConfig() = %q, %v, want rotated", v, err)
	}
}
