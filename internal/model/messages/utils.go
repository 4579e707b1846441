package messages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/clients/git"
	"max.ks1230/beancount-bot/internal/entity/beancount"
	"max.ks1230/beancount-bot/internal/entity/event"
	"max.ks1230/beancount-bot/internal/entity/user"
	"max.ks1230/beancount-bot/internal/logger"
	"max.ks1230/beancount-bot/internal/model/ledger"
	"max.ks1230/beancount-bot/internal/model/reports"
)

const commandParts = 2

// parseCommand splits "/cmd@bot arg" into "/cmd" and "arg". Text not starting with a
// slash is returned whole as arg of the empty command.
func parseCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	split := strings.SplitN(text, " ", commandParts)
	cmd = split[0]
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	if len(split) == commandParts {
		arg = strings.TrimSpace(split[1])
	}
	return cmd, arg
}

func (s *HandlerService) sync(ctx context.Context) error {
	if s.vcs == nil || !s.settings.PullBeforeWrite {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.syncLocked(ctx)
}

// syncLocked pulls the remote and forgets accounts read before the pull.
func (s *HandlerService) syncLocked(ctx context.Context) error {
	if err := s.vcs.Sync(ctx); err != nil {
		return err
	}
	s.store.InvalidateAccounts()
	return nil
}

// write appends entry to its month file and commits it with detail as the commit body.
// The returned status is meant for the user also when err is not nil. A *git.PushError
// means the entry is committed and stays on disk.
func (s *HandlerService) write(ctx context.Context, u user.Record, entry, detail string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "writeTransaction")
	defer span.Finish()

	date, err := beancount.EntryDate(entry)
	if err != nil {
		return invalidDraftMessage, errors.Wrap(err, "write transaction")
	}
	span.SetTag("date", date.Format(beancount.DateLayout))

	s.lock.Lock()
	appended, pushed, status, err := s.writeLocked(ctx, entry, date, detail)
	s.lock.Unlock()

	observeCommit(commitResult(err))
	if err != nil {
		ext.Error.Set(span, true)
	}
	if appended == nil {
		return status, err
	}

	logger.Info("transaction committed",
		zap.Int64("userID", u.ID),
		zap.String("user", u.DisplayName()),
		zap.String("file", appended.Path),
		zap.Bool("pushed", pushed))
	s.afterCommit(ctx, event.TransactionCommitted{
		UserID:      u.ID,
		Date:        date.Format(beancount.DateLayout),
		File:        s.relative(appended.Path),
		Entry:       entry,
		Pushed:      pushed,
		CommittedAt: s.now().UTC(),
	})
	return status, err
}

// writeLocked returns the append only when it was kept.
func (s *HandlerService) writeLocked(ctx context.Context, entry string, date time.Time, detail string) (*ledger.Appended, bool, string, error) {
	if s.vcs != nil && s.settings.PullBeforeWrite {
		if err := s.syncLocked(ctx); err != nil {
			status := syncFailedMessage
			if errors.Is(err, git.ErrConflict) {
				status = syncConflictMessage
			}
			return nil, false, status, errors.Wrap(err, "sync before write")
		}
	}

	appended, err := s.store.Append(entry, date)
	if err != nil {
		return nil, false, writeFailedMessage, err
	}
	if s.vcs == nil {
		return appended, false, committedMessage, nil
	}

	err = s.vcs.CommitAndPush(ctx, appended.Path, git.DefaultMessage, detail)
	var pushErr *git.PushError
	switch {
	case err == nil:
		return appended, true, committedMessage, nil
	case errors.As(err, &pushErr):
		return appended, false, fmt.Sprintf(pushFailedMessage, pushErr.Err), err
	}

	if rerr := appended.Revert(); rerr != nil {
		logger.Error("failed to revert append", zap.String("file", appended.Path), zap.Error(rerr))
	}
	return nil, false, commitFailedMessage, err
}

func (s *HandlerService) afterCommit(ctx context.Context, ev event.TransactionCommitted) {
	if s.cache != nil {
		if err := s.cache.InvalidateReports(reports.Periods()); err != nil {
			logger.Error("failed to invalidate reports", zap.Error(err))
		}
	}
	if s.events != nil {
		if err := s.events.TransactionCommitted(ctx, ev); err != nil {
			logger.Error("failed to publish event", zap.Error(err))
		}
	}
}

func (s *HandlerService) relative(path string) string {
	rel, err := filepath.Rel(s.store.Root(), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func commitResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, new(*git.PushError)):
		return "push_failed"
	}
	return "failed"
}
