package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/logger"
)

const (
	AccountsFile = "accounts.bean"
	TxsDir       = "txs"

	filePerm = 0o644
	dirPerm  = 0o755
)

// Store appends entries to txs/{year}/{month}.bean under the ledger root.
type Store struct {
	root     string
	accounts *AccountsCache
}

func NewStore(root string) *Store {
	return &Store{
		root:     root,
		accounts: NewAccountsCache(filepath.Join(root, AccountsFile)),
	}
}

func (s *Store) Root() string {
	return s.root
}

// MonthFile returns the path of the file holding entries dated in the month of date.
func (s *Store) MonthFile(date time.Time) string {
	return MonthFile(s.root, date.Year(), int(date.Month()))
}

func MonthFile(root string, year, month int) string {
	return filepath.Join(root, TxsDir, strconv.Itoa(year), fmt.Sprintf("%02d.bean", month))
}

// Appended describes one successful append and can undo it.
type Appended struct {
	Path    string
	prevLen int64
	created bool
}

// Append writes entry at the end of its month file, separated from the previous entry
// by a blank line. Missing directories and the file itself are created.
func (s *Store) Append(entry string, date time.Time) (*Appended, error) {
	path := s.MonthFile(date)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, errors.Wrap(err, "append transaction")
	}

	created := false
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		created = true
	case err != nil:
		return nil, errors.Wrap(err, "append transaction")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, errors.Wrap(err, "append transaction")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Error("failed to close ledger file", zap.String("file", path), zap.Error(cerr))
		}
	}()

	res := &Appended{Path: path, created: created}
	if !created {
		res.prevLen = info.Size()
	}

	text := entry
	if len(text) == 0 || text[len(text)-1] != '\n' {
		text += "\n"
	}
	if res.prevLen > 0 {
		text = "\n" + text
	}
	if _, err = f.WriteString(text); err != nil {
		return nil, errors.Wrap(err, "append transaction")
	}

	logger.Info("transaction appended", zap.String("file", path), zap.Bool("created", created))
	return res, nil
}

// Revert restores the file to the state before the append.
func (a *Appended) Revert() error {
	if a.created {
		return errors.Wrap(os.Remove(a.Path), "revert append")
	}
	return errors.Wrap(os.Truncate(a.Path, a.prevLen), "revert append")
}

// ReadMonth returns the content of a month file, empty if there is none.
func (s *Store) ReadMonth(year, month int) (string, error) {
	data, err := os.ReadFile(MonthFile(s.root, year, month))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "read month")
	}
	return string(data), nil
}

// Accounts returns the open accounts of accounts.bean.
func (s *Store) Accounts() ([]string, error) {
	return s.accounts.Get()
}

// InvalidateAccounts drops the cached accounts. Call it once git has changed the working
// copy, the watcher may not have caught up yet.
func (s *Store) InvalidateAccounts() {
	s.accounts.Invalidate()
}

// Watch keeps the account cache in sync with accounts.bean until Close.
func (s *Store) Watch() error {
	return s.accounts.Watch()
}

func (s *Store) Close() error {
	return s.accounts.Close()
}
