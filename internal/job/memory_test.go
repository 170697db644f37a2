package job

import (
	"context"
	"sync"
	"testing"

	"github.com/maauso/genbridge-api/internal/generator"
)

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New("task-1", generator.KindVideo, "u", 4)

	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID || saved.UserID != "u" {
		t.Errorf("unexpected saved job: %+v", saved)
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New("task-1", generator.KindVideo, "u", 4)
	_ = repo.Save(ctx, job)

	job.Observe(generator.Snapshot{Status: generator.StatusProcessing, Progress: 50})
	_ = repo.Save(ctx, job)

	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Status != StatusProcessing {
		t.Errorf("expected status %s, got %s", StatusProcessing, saved.Status)
	}
	if saved.Progress != 50 {
		t.Errorf("expected progress 50, got %d", saved.Progress)
	}
	if repo.Len() != 1 {
		t.Errorf("expected 1 job, got %d", repo.Len())
	}
}

func TestMemoryRepository_IsolatesCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New("task-1", generator.KindImage, "u", 1)
	_ = repo.Save(ctx, job)

	job.Progress = 99
	found, _ := repo.FindByID(ctx, "task-1")
	if found.Progress != 0 {
		t.Error("stored job changed after caller mutation")
	}

	found.Progress = 42
	again, _ := repo.FindByID(ctx, "task-1")
	if again.Progress != 0 {
		t.Error("stored job changed after reader mutation")
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "nonexistent")
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New("task-1", generator.KindVideo, "u", 4)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = repo.Save(ctx, job)
		}()
		go func() {
			defer wg.Done()
			_, _ = repo.FindByID(ctx, job.ID)
		}()
	}
	wg.Wait()

	if _, err := repo.FindByID(ctx, job.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
