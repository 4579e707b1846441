package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/logger"
)

const DefaultMessage = "Add a transaction"

var (
	// ErrConflict means local commits could not be rebased onto the remote. The rebase
	// is aborted and the working copy is left as it was before the sync.
	ErrConflict = errors.New("local commits conflict with the remote")
	ErrDetached = errors.New("HEAD is not on a branch")
)

type config interface {
	Remote() string
	Branch() string
	AuthorName() string
	AuthorEmail() string
	Timeout() time.Duration
}

// PushError means the commit was created locally but could not be pushed.
type PushError struct {
	Err error
}

func (e *PushError) Error() string {
	return "push: " + e.Err.Error()
}

func (e *PushError) Unwrap() error {
	return e.Err
}

// Repo runs git in a working copy. Identity, remote and branch come from the
// repository's own configuration unless set here.
type Repo struct {
	dir     string
	remote  string
	branch  string
	name    string
	email   string
	timeout time.Duration
}

func New(dir string, cfg config) *Repo {
	return &Repo{
		dir:     dir,
		remote:  cfg.Remote(),
		branch:  cfg.Branch(),
		name:    cfg.AuthorName(),
		email:   cfg.AuthorEmail(),
		timeout: cfg.Timeout(),
	}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	full := make([]string, 0, len(args)+6)
	full = append(full, "-C", r.dir)
	if r.name != "" {
		full = append(full, "-c", "user.name="+r.name)
	}
	if r.email != "" {
		full = append(full, "-c", "user.email="+r.email)
	}
	full = append(full, args...)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "git", full...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.Debug("git", zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		return msg, errors.Wrap(fmt.Errorf("%s: %w", msg, err), "git "+args[0])
	}
	return out.String(), nil
}

// Sync rebases local work onto the remote. A rebase that stops on a conflict is
// aborted and ErrConflict is returned.
func (r *Repo) Sync(ctx context.Context) error {
	if err := r.abortRebase(); err != nil {
		return err
	}

	args := []string{"pull", "--rebase"}
	if r.remote != "" && r.branch != "" {
		args = append(args, r.remote, r.branch)
	}
	_, err := r.run(ctx, args...)
	if err == nil {
		return nil
	}

	rebasing, rerr := r.rebasing(context.Background())
	if rerr != nil || !rebasing {
		return err
	}
	if aerr := r.abortRebase(); aerr != nil {
		logger.Error("failed to abort rebase", zap.Error(aerr))
	}
	return errors.Wrap(ErrConflict, err.Error())
}

// rebasing reports whether a rebase stopped half way in the working copy.
func (r *Repo) rebasing(ctx context.Context) (bool, error) {
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		out, err := r.run(ctx, "rev-parse", "--git-path", name)
		if err != nil {
			return false, err
		}
		path := strings.TrimSpace(out)
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.dir, path)
		}
		if _, err = os.Stat(path); err == nil {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repo) abortRebase() error {
	rebasing, err := r.rebasing(context.Background())
	if err != nil || !rebasing {
		return err
	}
	logger.Info("aborting unfinished rebase", zap.String("dir", r.dir))
	_, err = r.run(context.Background(), "rebase", "--abort")
	return err
}

// currentBranch fails with ErrDetached while a rebase is in progress or HEAD is
// detached, so commits never land outside the branch.
func (r *Repo) currentBranch(ctx context.Context) (string, error) {
	rebasing, err := r.rebasing(ctx)
	if err != nil {
		return "", err
	}
	if rebasing {
		return "", errors.Wrap(ErrDetached, "rebase in progress")
	}
	out, err := r.run(ctx, "symbolic-ref", "-q", "--short", "HEAD")
	if err != nil {
		return "", errors.Wrap(ErrDetached, err.Error())
	}
	return strings.TrimSpace(out), nil
}

// CommitAndPush commits file alone, with detail as the message body when not empty,
// and pushes. When the commit cannot be created the file is unstaged again.
func (r *Repo) CommitAndPush(ctx context.Context, file, message, detail string) error {
	if _, err := r.currentBranch(ctx); err != nil {
		return err
	}
	if _, err := r.run(ctx, "add", "--", file); err != nil {
		return err
	}

	args := []string{"commit", "-m", message}
	if detail != "" {
		args = append(args, "-m", detail)
	}
	args = append(args, "--", file)
	if _, err := r.run(ctx, args...); err != nil {
		if _, rerr := r.run(context.Background(), "reset", "-q", "--", file); rerr != nil {
			logger.Error("failed to unstage file", zap.String("file", file), zap.Error(rerr))
		}
		return err
	}

	if err := r.Push(ctx); err != nil {
		return &PushError{Err: err}
	}
	return nil
}

// Push sends the current branch to the configured remote branch. It refuses to push
// a detached HEAD.
func (r *Repo) Push(ctx context.Context) error {
	local, err := r.currentBranch(ctx)
	if err != nil {
		return err
	}

	args := []string{"push"}
	if r.remote != "" {
		branch := r.branch
		if branch == "" {
			branch = local
		}
		args = append(args, r.remote, "refs/heads/"+local+":refs/heads/"+branch)
	}
	_, err = r.run(ctx, args...)
	return err
}

func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--short", "HEAD")
	return strings.TrimSpace(out), err
}
