package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/model"
)

// DefaultHookTimeout is the default timeout for hook execution in seconds.
const DefaultHookTimeout = 30

// HookResult contains the result of executing a hook.
type HookResult struct {
	HookName string
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Error    error
}

// HookService runs the project's completion hooks. It is a Notifier: it
// reacts to celebration notices and ignores everything else.
type HookService struct {
	projectRoot string
	hooks       []model.CompletionHook
	logger      *log.Logger
}

// NewHookService creates a hook runner for the given hooks.
func NewHookService(projectRoot string, hooks []model.CompletionHook, logger *log.Logger) *HookService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &HookService{projectRoot: projectRoot, hooks: hooks, logger: logger}
}

// FindMatchingHooks returns the hooks that fire for a drop into kind.
func (s *HookService) FindMatchingHooks(kind model.GroupKind) []model.CompletionHook {
	var matching []model.CompletionHook
	for _, hook := range s.hooks {
		if hook.Matches(kind) {
			matching = append(matching, hook)
		}
	}
	return matching
}

func (s *HookService) Notify(n Notice) {
	if n.Kind != NoticeCelebrate {
		return
	}
	for _, hook := range s.FindMatchingHooks(model.GroupKind(n.GroupKind)) {
		result := s.ExecuteHook(hook, n.ItemID, n.BoardID, n.GroupID)
		entry := s.logger.WithFields(log.Fields{
			"hook":     result.HookName,
			"item":     n.ItemID,
			"exit":     result.ExitCode,
			"duration": result.Duration,
		})
		if !result.Success {
			entry.WithError(result.Error).WithField("stderr", result.Stderr).Warn("completion hook failed")
			continue
		}
		entry.Debug("completion hook ran")
	}
}

// ExecuteHook runs a hook command with the item, board and group IDs as
// arguments.
func (s *HookService) ExecuteHook(hook model.CompletionHook, itemID, boardID, groupID string) *HookResult {
	result := &HookResult{
		HookName: hook.Name,
	}

	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}

	command := expandTilde(hook.Command)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, itemID, boardID, groupID)
	cmd.Dir = s.projectRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)

	result.Stdout = strings.TrimSpace(stdout.String())
	result.Stderr = strings.TrimSpace(stderr.String())

	if err != nil {
		result.Error = err
		result.Success = false

		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Errorf("hook timed out after %ds", timeout)
			result.ExitCode = -1
		}
	} else {
		result.Success = true
		result.ExitCode = 0
	}

	return result
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
