// Package vault keeps the notes directory under git so every session's
// edits can be snapshotted and rolled back.
package vault

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Vault manages the git repository backing the notes directory.
type Vault struct {
	config Config
	mu     sync.Mutex // Serializes git operations to prevent index lock conflicts
}

// New creates a vault manager. Nothing touches the disk until Open.
func New(cfg Config) *Vault {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "lifecycle"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "lifecycle@localhost"
	}
	return &Vault{config: cfg}
}

// Path returns the vault directory.
func (v *Vault) Path() string {
	return v.config.Path
}

// Open makes sure the vault directory exists and is a git repository,
// initializing one if needed.
func (v *Vault) Open(ctx context.Context) (*Info, error) {
	if v.config.Path == "" {
		return nil, fmt.Errorf("vault path is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	abs, err := filepath.Abs(v.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	info := &Info{Path: abs}
	if _, err := os.Stat(filepath.Join(abs, ".git")); os.IsNotExist(err) {
		if _, err := v.git(ctx, "init"); err != nil {
			return nil, err
		}
		// symbolic-ref works on every git version, unlike init -b
		if _, err := v.git(ctx, "symbolic-ref", "HEAD", "refs/heads/"+v.config.Branch); err != nil {
			return nil, err
		}
		info.Fresh = true
	}

	branch, err := v.git(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return nil, err
	}
	info.Branch = branch

	head, err := v.head(ctx)
	if err != nil {
		return nil, err
	}
	info.Head = head
	return info, nil
}

// Head returns the current HEAD commit, or "" if nothing was committed yet.
func (v *Vault) Head(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.head(ctx)
}

func (v *Vault) head(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", "-q", "HEAD")
	cmd.Dir = v.config.Path
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil // Unborn branch
		}
		return "", fmt.Errorf("failed to get HEAD commit: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Status returns the uncommitted changes in the vault.
func (v *Vault) Status(ctx context.Context) ([]Change, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status(ctx)
}

func (v *Vault) status(ctx context.Context) ([]Change, error) {
	output, err := v.gitRaw(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parseStatus(output), nil
}

// parseStatus extracts changes from porcelain v1 output.
func parseStatus(output string) []Change {
	var changes []Change
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		// Renames are reported as "old -> new"
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		changes = append(changes, Change{Code: line[:2], Path: strings.Trim(path, `"`)})
	}
	return changes
}

// Commit stages everything and commits it. A clean working tree is not an
// error: the result reports Committed false.
func (v *Vault) Commit(ctx context.Context, message string) (*CommitResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	changes, err := v.status(ctx)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		head, err := v.head(ctx)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Head: head}, nil
	}

	if _, err := v.git(ctx, "add", "-A"); err != nil {
		return nil, err
	}
	if _, err := v.git(ctx,
		"-c", "user.name="+v.config.AuthorName,
		"-c", "user.email="+v.config.AuthorEmail,
		"-c", "commit.gpgsign=false",
		"commit", "--no-verify", "-m", message,
	); err != nil {
		return nil, err
	}

	head, err := v.head(ctx)
	if err != nil {
		return nil, err
	}
	return &CommitResult{Committed: true, Head: head, Files: len(changes)}, nil
}

// git runs a git command in the vault and returns its trimmed output.
func (v *Vault) git(ctx context.Context, args ...string) (string, error) {
	output, err := v.gitRaw(ctx, args...)
	return strings.TrimSpace(output), err
}

// gitRaw keeps leading whitespace, which is significant in porcelain output.
func (v *Vault) gitRaw(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = v.config.Path
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w (output: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
