package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"quadrant/api/internal/store"
)

func boardFixture() []store.Idea {
	return []store.Idea{
		{ID: "idea-1", ProjectID: "proj-1", Title: "Ship onboarding", Category: "quick-win", Status: "active", X: 0.2, Y: 0.8, Version: 1},
		{ID: "idea-2", ProjectID: "proj-1", Title: "Rewrite billing", Category: "big-bet", Status: "active", X: 0.9, Y: 0.9, Version: 1},
	}
}

func TestProjectHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := boardFixture()
	if err := svc.EnsureProjectRepo("proj-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "proj-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Second call is a no-op, not an error.
	if err := svc.EnsureProjectRepo("proj-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() second call error = %v", err)
	}

	updated := boardFixture()
	updated[0].Title = "Ship onboarding v2"
	updated[0].Version = 2
	commit, err := svc.CommitBoard("proj-1", updated, "Avery", "Rename idea-1")
	if err != nil {
		t.Fatalf("CommitBoard() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if commit.Author != "Avery" {
		t.Fatalf("unexpected author %q", commit.Author)
	}

	history, err := svc.History("proj-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Hash != commit.Hash {
		t.Fatal("expected newest commit first")
	}

	board, err := svc.BoardAt("proj-1", commit.Hash)
	if err != nil {
		t.Fatalf("BoardAt() error = %v", err)
	}
	if len(board) != 2 || board[0].Title != "Ship onboarding v2" || board[0].Version != 2 {
		t.Fatalf("unexpected board at commit: %+v", board)
	}

	baseline, err := svc.BoardAt("proj-1", history[1].Hash)
	if err != nil {
		t.Fatalf("BoardAt() baseline error = %v", err)
	}
	if baseline[0].Title != "Ship onboarding" {
		t.Fatalf("unexpected baseline board: %+v", baseline)
	}
}

func TestHistoryLimit(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("proj-1", boardFixture(), "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		board := boardFixture()
		board[0].X = float64(i) / 10
		if _, err := svc.CommitBoard("proj-1", board, "Avery", fmt.Sprintf("Move %d", i)); err != nil {
			t.Fatalf("CommitBoard() error = %v", err)
		}
	}

	history, err := svc.History("proj-1", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 commits with limit, got %d", len(history))
	}
}

func TestConcurrentCommitsSameProject(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("proj-1", boardFixture(), "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			board := boardFixture()
			board[0].Title = fmt.Sprintf("idea-%02d", idx)
			if _, err := svc.CommitBoard("proj-1", board, "Avery", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitBoard() concurrent error = %v", err)
		}
	}

	history, err := svc.History("proj-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < writers+1 {
		t.Fatalf("expected at least %d commits, got %d", writers+1, len(history))
	}
}
