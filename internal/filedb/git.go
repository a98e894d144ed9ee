// Implements the best-effort git history behind DB using go-git.

package filedb

import (
	"context"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/indecisive-app/indecisive/internal/models"
)

const (
	commitName  = "indecisive"
	commitEmail = "indecisive@localhost"
)

// repo wraps a go-git repository. Commits are serialized with a mutex
// because the worktree index is not safe for concurrent staging.
type repo struct {
	dir string
	git *gogit.Repository
	mu  sync.Mutex
}

// openRepo opens dir as a git repository, initializing it on first use.
func openRepo(dir string) (*repo, error) {
	g, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet — initialize.
		g, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, models.StorageError("failed to initialize git repository", err)
		}
		cfg, err := g.Config()
		if err != nil {
			return nil, models.StorageError("failed to read git config", err)
		}
		cfg.User.Name = commitName
		cfg.User.Email = commitEmail
		if err := g.SetConfig(cfg); err != nil {
			return nil, models.StorageError("failed to write git config", err)
		}
	}
	return &repo{dir: dir, git: g}, nil
}

// commit stages relPath (staging also records deletions) and commits it.
// No-op when the worktree is already clean.
func (r *repo) commit(ctx context.Context, relPath, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Detach from the request context but keep a bound.
	_, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	w, err := r.git.Worktree()
	if err != nil {
		return err
	}
	if _, err := w.Add(relPath); err != nil {
		return err
	}
	status, err := w.Status()
	if err != nil {
		return err
	}
	if status.IsClean() {
		return nil
	}

	now := time.Now()
	sig := &object.Signature{Name: commitName, Email: commitEmail, When: now}
	_, err = w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig})
	return err
}

// commitCount returns the number of commits in the history, zero when the
// repository has none yet.
func (r *repo) commitCount() int {
	iter, err := r.git.Log(&gogit.LogOptions{})
	if err != nil {
		return 0
	}
	defer iter.Close()
	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		n++
	}
	return n
}

// CommitCount returns the number of commits recorded in the store's
// history, or zero when commits are disabled.
func (d *DB) CommitCount() int {
	if d.repo == nil {
		return 0
	}
	return d.repo.commitCount()
}
