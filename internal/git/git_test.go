package git

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RepoRootOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	c := &Client{Dir: t.TempDir()}

	_, err := c.RepoRoot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in a git repository")
}
