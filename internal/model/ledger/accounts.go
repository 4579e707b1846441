package ledger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/entity/beancount"
	"max.ks1230/beancount-bot/internal/logger"
)

// AccountsCache holds the parsed account list. Without a running watcher every Get
// reads the file again.
type AccountsCache struct {
	path string

	mu       sync.Mutex
	accounts []string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

func NewAccountsCache(path string) *AccountsCache {
	return &AccountsCache{path: path}
}

func (c *AccountsCache) Get() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accounts != nil {
		return c.accounts, nil
	}

	accounts, err := readAccounts(c.path)
	if err != nil {
		return nil, err
	}
	if c.watcher != nil {
		c.accounts = accounts
	}
	return accounts, nil
}

func (c *AccountsCache) Invalidate() {
	c.mu.Lock()
	c.accounts = nil
	c.mu.Unlock()
}

// Watch watches the directory of the accounts file. Git replaces the file on checkout
// and rebase, so a watch on the file itself would be lost.
func (c *AccountsCache) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watch accounts")
	}
	if err = w.Add(filepath.Dir(c.path)); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "watch accounts")
	}

	c.mu.Lock()
	c.watcher = w
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.loop(w, c.done)
	return nil
}

func (c *AccountsCache) loop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == filepath.Clean(c.path) {
				logger.Info("accounts file changed", zap.String("op", ev.Op.String()))
				c.Invalidate()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("accounts watcher", zap.Error(err))
			c.Invalidate()
		}
	}
}

func (c *AccountsCache) Close() error {
	c.mu.Lock()
	w, done := c.watcher, c.done
	c.watcher = nil
	c.accounts = nil
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return errors.Wrap(err, "close accounts watcher")
}

func readAccounts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "get accounts")
	}
	defer f.Close()

	return beancount.ParseAccounts(f)
}

func readChart(path string) (beancount.Chart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "get accounts")
	}
	defer f.Close()

	return beancount.ParseChart(f)
}
