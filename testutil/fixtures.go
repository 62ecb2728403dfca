package testutil

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/amterp/kanflow/internal/config"
	"github.com/amterp/kanflow/internal/model"
)

// TestItem returns an item with sensible test defaults.
func TestItem(id, groupID string, position int) *model.Item {
	now := time.Now().UnixMilli()
	return &model.Item{
		ID:              id,
		GroupID:         groupID,
		Position:        position,
		Title:           "Item " + id,
		Creator:         "tester",
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
	}
}

// TestGroup returns a group of the given kind with its default policy.
func TestGroup(id, title string, order int, kind model.GroupKind) model.Group {
	return model.Group{
		ID:        id,
		Title:     title,
		OrderHint: order,
		Kind:      kind,
		Policy:    model.DefaultPolicy(kind),
	}
}

// TaskBoard returns board "tasks" with groups A (x, y, z), B (w), a locked
// group C (c1) and D (empty).
func TaskBoard() *model.Board {
	locked := TestGroup("C", "Frozen", 2, model.GroupKindActive)
	locked.Policy.AcceptsOutgoing = false

	items := []*model.Item{
		TestItem("x", "A", 0),
		TestItem("y", "A", 1),
		TestItem("z", "A", 2),
		TestItem("w", "B", 0),
		TestItem("c1", "C", 0),
	}
	for i, it := range items {
		it.CreatedAtMillis = int64(i + 1)
		it.UpdatedAtMillis = int64(i + 1)
	}
	return &model.Board{
		ID:   "tasks",
		Name: "Tasks",
		Groups: []model.Group{
			TestGroup("A", "Todo", 0, model.GroupKindActive),
			TestGroup("B", "Doing", 1, model.GroupKindActive),
			locked,
			TestGroup("D", "Done", 3, model.GroupKindDone),
		},
		Items: items,
	}
}

// PipelineBoard returns board "sales" with stages lead, won and lost and
// three valued deals.
func PipelineBoard() *model.Board {
	d1 := TestItem("d1", "lead", 0)
	d1.Value = 1000
	d2 := TestItem("d2", "lead", 1)
	d2.Value = 250
	d3 := TestItem("d3", "won", 0)
	d3.Value = 5000
	d3.CompletedAtMillis = 3
	return &model.Board{
		ID:   "sales",
		Name: "Sales",
		Groups: []model.Group{
			TestGroup("lead", "Lead", 0, model.GroupKindActive),
			TestGroup("won", "Won", 1, model.GroupKindWon),
			TestGroup("lost", "Lost", 2, model.GroupKindLost),
		},
		Items: []*model.Item{d1, d2, d3},
	}
}

// TempProject creates a temporary project with a .kanflow/boards structure.
func TempProject(t *testing.T) *config.Paths {
	t.Helper()

	paths := config.NewPaths(t.TempDir())
	if err := os.MkdirAll(paths.BoardsRoot(), 0755); err != nil {
		t.Fatalf("failed to create boards dir: %v", err)
	}
	return paths
}

// TempGitRepo creates a temporary git repository for testing.
// Skips the test when git is unavailable.
func TempGitRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()

	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	cmd = exec.Command("git", "config", "user.name", "Test User")
	cmd.Dir = dir
	cmd.Run()

	return dir
}
