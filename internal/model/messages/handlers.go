package messages

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/clients/git"
	"max.ks1230/beancount-bot/internal/entity/beancount"
	"max.ks1230/beancount-bot/internal/entity/user"
	"max.ks1230/beancount-bot/internal/logger"
	"max.ks1230/beancount-bot/internal/model/auth"
	"max.ks1230/beancount-bot/internal/model/reports"
)

const (
	errorPrefix = "Sorry, something wrong happened...\n"

	dontUnderstandMessage = "I don't understand you :("
	helloMessage          = "Hello! I write your transactions to the ledger 📒"
	helpMessage           = `Send a transaction as
[YYYY-MM-DD] [>Payee] [#tag ...] Amount Account ExpenseAccount [Narration]
e.g. >Cafe 12.50 cash food lunch with "Max"

/accounts [terms] - list accounts
/report [week|month|year] - expenses of the period
/push - push commits left by a failed push`

	unauthorizedMessage  = "Unauthorized. Send /auth <secret> first"
	authorizedMessage    = "Authorized!"
	alreadyAuthMessage   = "You are already authorized"
	wrongSecretMessage   = "Wrong secret"
	lockedOutMessage     = "Too many attempts, try later"
	authUsageMessage     = "Usage: /auth <secret>"
	noAccountsMessage    = "No matched account"
	reportUsageMessage   = "Usage: /report [week|month|year]"
	noReportsMessage     = "Reports are not available"
	gitDisabledMessage   = "Git is disabled"
	pushedMessage        = "Pushed ✅"
	cannotGetAccounts    = "Can't read accounts atm. Try later"
	cannotGetReport      = "Can't build the report atm. Try later"
	cannotPushMessage    = "Push failed"
	unknownActionMessage = "Unknown action"
	commitButtonData     = "commit"
	cancelButtonData     = "cancel"
	committedMessage     = "Committed ✅"
	cancelledMessage     = "Cancelled ❌"
	pushFailedMessage    = "Committed locally, push failed: %v\nUse /push to retry"
	writeFailedMessage   = "Failed to write ❌"
	commitFailedMessage  = "Failed to commit, change reverted ❌"
	syncFailedMessage    = "Failed to sync with the remote ❌"
	syncConflictMessage  = "Local commits conflict with the remote, resolve them in the repository ❌"
	invalidDraftMessage  = "This draft can't be read ❌"
	callbackUnauthorized = "Unauthorized"
	callbackCommitted    = "Committed"
	callbackCancelled    = "Cancelled"
	callbackFailed       = "Failed"
)

const (
	startCommand    = "/start"
	helpCommand     = "/help"
	authCommand     = "/auth"
	accountsCommand = "/accounts"
	reportCommand   = "/report"
	pushCommand     = "/push"
)

type handler func(ctx context.Context, msg Message, arg string) (string, error)

type handlerMap map[string]handler

type HandlerService struct {
	handlersMap handlerMap
	sender      messageSender
	gate        authGate
	store       ledgerStore
	vcs         versionControl
	reports     reportGenerator
	events      eventPublisher
	cache       reportInvalidator
	settings    Settings
	now         func() time.Time

	lock writeLock
}

func newHandler(sender messageSender, gate authGate, store ledgerStore, vcs versionControl, settings Settings) *HandlerService {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	res := &HandlerService{
		sender:   sender,
		gate:     gate,
		store:    store,
		vcs:      vcs,
		settings: settings,
		now:      time.Now,
		lock:     writeLock{committed: make(map[draftKey]bool)},
	}
	res.handlersMap = newMap(res)
	return res
}

func newMap(s *HandlerService) handlerMap {
	m := make(handlerMap)
	m[startCommand] = s.handleStart
	m[helpCommand] = s.handleHelp
	m[accountsCommand] = s.handleAccounts
	m[reportCommand] = s.handleReport
	m[pushCommand] = s.handlePush

	m[""] = s.handleTransaction

	return m
}

func (s *HandlerService) tooOld(msg Message) bool {
	if s.settings.MaxMessageAge <= 0 || msg.Date.IsZero() {
		return false
	}
	return s.now().Sub(msg.Date) > s.settings.MaxMessageAge
}

// HandleMessage returns the reply text. An empty reply means the handler has already
// answered on its own.
func (s *HandlerService) HandleMessage(ctx context.Context, msg Message) (string, error) {
	cmd, arg := parseCommand(msg.Text)

	if cmd == authCommand {
		return s.handleAuth(ctx, msg, arg)
	}

	authorized, err := s.gate.IsAuthorized(ctx, msg.UserID)
	if err != nil {
		return "", errors.Wrap(err, "handle message")
	}
	if !authorized {
		logger.Info("rejecting unauthorized user", zap.Int64("userID", msg.UserID), zap.String("cmd", cmd))
		return unauthorizedMessage, nil
	}

	if h, ok := s.handlersMap[cmd]; ok {
		return h(ctx, msg, arg)
	}
	return dontUnderstandMessage, nil
}

func (s *HandlerService) handleAuth(ctx context.Context, msg Message, arg string) (string, error) {
	secret := strings.TrimSpace(arg)
	if secret == "" {
		return authUsageMessage, nil
	}

	authorized, err := s.gate.IsAuthorized(ctx, msg.UserID)
	if err != nil {
		return "", errors.Wrap(err, "handle auth")
	}
	if authorized {
		return alreadyAuthMessage, nil
	}

	err = s.gate.Authenticate(ctx, msg.user(), secret)
	switch {
	case errors.Is(err, auth.ErrWrongSecret):
		return wrongSecretMessage, nil
	case errors.Is(err, auth.ErrLockedOut):
		return lockedOutMessage, nil
	case err != nil:
		return "", errors.Wrap(err, "handle auth")
	}

	// the message carries the secret
	if derr := s.sender.DeleteMessage(msg.ChatID, msg.MessageID); derr != nil {
		logger.Error("failed to delete auth message", zap.Error(derr))
	}
	return authorizedMessage, nil
}

func (s *HandlerService) handleStart(_ context.Context, _ Message, _ string) (string, error) {
	return helloMessage + "\n\n" + helpMessage, nil
}

func (s *HandlerService) handleHelp(_ context.Context, _ Message, _ string) (string, error) {
	return helpMessage, nil
}

func (s *HandlerService) handleAccounts(ctx context.Context, _ Message, arg string) (string, error) {
	if err := s.sync(ctx); err != nil {
		return cannotGetAccounts, errors.Wrap(err, "handle accounts")
	}
	accounts, err := s.store.Accounts()
	if err != nil {
		return cannotGetAccounts, errors.Wrap(err, "handle accounts")
	}

	matched := beancount.SearchAccounts(accounts, arg)
	if len(matched) == 0 {
		return noAccountsMessage, nil
	}
	return strings.Join(matched, "\n"), nil
}

func (s *HandlerService) handleReport(ctx context.Context, _ Message, arg string) (string, error) {
	if s.reports == nil {
		return noReportsMessage, nil
	}
	text, err := s.reports.Text(ctx, strings.TrimSpace(arg))
	if errors.Is(err, reports.ErrUnknownPeriod) {
		return reportUsageMessage, nil
	}
	if err != nil {
		return cannotGetReport, errors.Wrap(err, "handle report")
	}
	return text, nil
}

func (s *HandlerService) handlePush(ctx context.Context, _ Message, _ string) (string, error) {
	if s.vcs == nil {
		return gitDisabledMessage, nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.vcs.Push(ctx); err != nil {
		return cannotPushMessage, errors.Wrap(err, "handle push")
	}
	return pushedMessage, nil
}

// handleTransaction turns free text into an entry and either asks for confirmation or
// writes it right away. Mistakes in the command are answered, not treated as errors.
func (s *HandlerService) handleTransaction(ctx context.Context, msg Message, arg string) (string, error) {
	args, err := beancount.SplitCommand(arg)
	if err != nil {
		return "Invalid command: " + err.Error(), nil
	}
	if len(args) == 0 {
		return dontUnderstandMessage, nil
	}

	if err = s.sync(ctx); err != nil {
		return cannotGetAccounts, errors.Wrap(err, "handle transaction")
	}
	accounts, err := s.store.Accounts()
	if err != nil {
		return cannotGetAccounts, errors.Wrap(err, "handle transaction")
	}

	txn, err := beancount.FromCommand(args, accounts, s.settings.DefaultCurrency, s.now().In(s.settings.Location))
	if err != nil {
		return err.Error(), nil
	}
	entry := txn.String()

	if s.settings.Confirm {
		if err = s.sender.SendDraft(msg.ChatID, msg.MessageID, entry); err != nil {
			return "", errors.Wrap(err, "send draft")
		}
		return "", nil
	}

	status, err := s.write(ctx, msg.user(), entry, msg.Text)
	return entry + "\n" + status, err
}

// HandleCallback processes the Commit and Cancel buttons of a draft and returns the
// short notification shown to the user.
func (s *HandlerService) HandleCallback(ctx context.Context, cb Callback) (string, error) {
	authorized, err := s.gate.IsAuthorized(ctx, cb.UserID)
	if err != nil {
		return callbackFailed, errors.Wrap(err, "handle callback")
	}
	if !authorized {
		return callbackUnauthorized, nil
	}

	var status, answer string
	switch cb.Data {
	case commitButtonData:
		status, err = s.commitDraft(ctx, cb)
		answer = callbackCommitted
		if err != nil {
			answer = callbackFailed
		}
	case cancelButtonData:
		status, answer = cancelledMessage, callbackCancelled
	default:
		return unknownActionMessage, nil
	}

	if status == "" {
		return answer, err
	}
	if eerr := s.sender.EditMessage(cb.ChatID, cb.MessageID, strings.TrimRight(cb.Text, "\n")+"\n\n"+status); eerr != nil {
		logger.Error("failed to edit draft", zap.Error(eerr))
	}
	return answer, err
}

func (s *HandlerService) commitDraft(ctx context.Context, cb Callback) (string, error) {
	key := draftKey{chatID: cb.ChatID, messageID: cb.MessageID}

	s.lock.Lock()
	done := s.lock.committed[key]
	s.lock.Unlock()
	if done {
		return "", nil
	}

	status, err := s.write(ctx, user.Record{ID: cb.UserID, UserName: cb.UserName}, cb.Text, cb.ReplyText)
	if err == nil || errors.As(err, new(*git.PushError)) {
		s.lock.Lock()
		s.lock.committed[key] = true
		s.lock.Unlock()
	}
	return status, err
}
