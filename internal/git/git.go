package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const commandTimeout = 5 * time.Second

// Client runs read-only git queries. Dir empty means the working directory.
type Client struct {
	Dir string
}

// NewClient creates a new git client.
func NewClient() *Client {
	return &Client{}
}

// UserName returns the configured git user.name, the fallback identity
// for moves made from this machine.
func (c *Client) UserName(ctx context.Context) (string, error) {
	name, err := c.output(ctx, "config", "user.name")
	if err != nil {
		return "", fmt.Errorf("git user.name: %w", err)
	}
	return name, nil
}

// RepoRoot returns the top level of the enclosing repository, where
// kanflow keeps its .kanflow directory.
func (c *Client) RepoRoot(ctx context.Context) (string, error) {
	root, err := c.output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not in a git repository: %w", err)
	}
	return root, nil
}

func (c *Client) output(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
