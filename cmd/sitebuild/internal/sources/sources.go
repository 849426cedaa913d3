// Package sources resolves configured input sources to local directories,
// cloning or updating git-backed sources first.
package sources

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/log"
	"github.com/albertocavalcante/sitebuild/internal/retry"
	"github.com/albertocavalcante/sitebuild/pkg/config"
)

// TokenEnv names the environment variable holding a git access token.
const TokenEnv = "SITEBUILD_GIT_TOKEN"

// Source is a resolved input directory.
type Source struct {
	Name     string
	Dir      string
	Metadata string // absolute sidecar path, or ""
	Include  []string
	Exclude  []string
	Revision string // checked out commit for git sources
}

// Options configures source resolution.
type Options struct {
	// Token authenticates http(s) git remotes. Empty reads TokenEnv.
	Token string

	// Retry applies to clone and fetch operations.
	Retry retry.Policy

	// Offline skips git operations and uses existing checkouts as they are.
	Offline bool

	Logger *slog.Logger
}

// Resolve returns one Source per config entry. A local source must exist;
// a git source is cloned into its path or updated there.
func Resolve(ctx context.Context, cfgs []config.SourceConfig, opts Options) ([]Source, error) {
	if opts.Token == "" {
		opts.Token = os.Getenv(TokenEnv)
	}
	if opts.Logger == nil {
		opts.Logger = log.Component("sources")
	}

	resolved := make([]Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		src := Source{
			Name:    cfg.Name,
			Dir:     cfg.Path,
			Include: cfg.IncludePatterns(),
			Exclude: cfg.Exclude,
		}

		if cfg.URL != "" && !opts.Offline {
			rev, err := syncWithRetry(ctx, cfg, opts)
			if err != nil {
				return nil, errors.SourceError(cfg.Name, err).WithContext("url", cfg.URL)
			}
			src.Revision = rev
		}

		info, err := os.Stat(src.Dir)
		if err != nil {
			return nil, errors.InputError(src.Dir, err).WithContext("source", cfg.Name)
		}
		if !info.IsDir() {
			return nil, errors.InputError(src.Dir, fmt.Errorf("not a directory")).WithContext("source", cfg.Name)
		}

		if cfg.Metadata != "" {
			src.Metadata = cfg.Metadata
			if !filepath.IsAbs(src.Metadata) {
				src.Metadata = filepath.Join(src.Dir, src.Metadata)
			}
		}
		resolved = append(resolved, src)
	}
	return resolved, nil
}

func syncWithRetry(ctx context.Context, cfg config.SourceConfig, opts Options) (string, error) {
	logger := opts.Logger.With(log.Source(cfg.Name))
	var rev string
	_, err := opts.Retry.Do(ctx, func(attempt int) error {
		r, err := syncRepo(ctx, cfg, authFor(cfg.URL, opts.Token))
		if err != nil {
			return err
		}
		rev = r
		return nil
	}, func(retry int, err error) {
		logger.Warn("git sync failed, retrying", log.Attempt(retry+1), log.Err(err))
	})
	if err != nil {
		return "", err
	}
	logger.Info("source synced", "url", cfg.URL, "commit", shortHash(rev))
	return rev, nil
}

// authFor returns token auth for http(s) remotes.
func authFor(url, token string) transport.AuthMethod {
	if token == "" || !(strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://")) {
		return nil
	}
	return &http.BasicAuth{Username: "token", Password: token}
}

// syncRepo clones the repository, or updates an existing checkout to the
// remote branch head. The checkout is treated as read-only: local changes
// are discarded.
func syncRepo(ctx context.Context, cfg config.SourceConfig, auth transport.AuthMethod) (string, error) {
	if _, err := os.Stat(filepath.Join(cfg.Path, ".git")); err == nil {
		return updateRepo(ctx, cfg, auth)
	}
	return cloneRepo(ctx, cfg, auth)
}

func cloneRepo(ctx context.Context, cfg config.SourceConfig, auth transport.AuthMethod) (string, error) {
	if err := os.RemoveAll(cfg.Path); err != nil {
		return "", fmt.Errorf("failed to remove existing directory: %w", err)
	}
	opts := &git.CloneOptions{
		URL:  cfg.URL,
		Auth: auth,
		Tags: git.NoTags,
	}
	if isRemote(cfg.URL) {
		opts.Depth = 1
	}
	if cfg.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(cfg.Branch)
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, cfg.Path, false, opts)
	if err != nil {
		return "", fmt.Errorf("clone %s: %w", cfg.URL, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	return head.Hash().String(), nil
}

func updateRepo(ctx context.Context, cfg config.SourceConfig, auth transport.AuthMethod) (string, error) {
	repo, err := git.PlainOpen(cfg.Path)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}

	fetch := &git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Tags:       git.NoTags,
		Force:      true,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	}
	if err := repo.FetchContext(ctx, fetch); err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("fetch: %w", err)
	}

	branch := cfg.Branch
	if branch == "" {
		head, err := repo.Head()
		if err != nil || !head.Name().IsBranch() {
			return "", fmt.Errorf("cannot determine branch of %s, set one explicitly", cfg.Path)
		}
		branch = head.Name().Short()
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return "", fmt.Errorf("remote ref %s: %w", branch, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	localRef := plumbing.NewBranchReferenceName(branch)
	co := &git.CheckoutOptions{Branch: localRef, Force: true}
	if _, err := repo.Reference(localRef, true); err != nil {
		co.Create = true
		co.Hash = remoteRef.Hash()
	}
	if err := wt.Checkout(co); err != nil {
		return "", fmt.Errorf("checkout %s: %w", branch, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return "", fmt.Errorf("reset: %w", err)
	}
	return remoteRef.Hash().String(), nil
}

func isRemote(url string) bool {
	return strings.Contains(url, "://") && !strings.HasPrefix(url, "file://") || strings.HasPrefix(url, "git@")
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// ScanPaths returns the source directories, for watchers.
func ScanPaths(srcs []Source) []string {
	paths := make([]string, len(srcs))
	for i, s := range srcs {
		paths[i] = s.Dir
	}
	return paths
}
