package messages

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"max.ks1230/beancount-bot/internal/clients/git"
	"max.ks1230/beancount-bot/internal/entity/event"
	"max.ks1230/beancount-bot/internal/entity/user"
	"max.ks1230/beancount-bot/internal/model/auth"
	"max.ks1230/beancount-bot/internal/model/ledger"
	"max.ks1230/beancount-bot/internal/model/storage"
)

const (
	testChatID = int64(123)
	testUserID = int64(42)

	testAccounts = `2020-01-01 open Assets:Cash
2020-01-01 open Liabilities:Card
2020-01-01 open Expenses:Food
`
	lunchCommand = "2024-03-15 12.50 cash food lunch"
	lunchEntry   = "2024-03-15 * \"lunch\"\n    Expenses:Food 12.50 CNY\n    Assets:Cash -12.50 CNY\n"
)

var testNow = time.Date(2024, time.March, 20, 10, 0, 0, 0, time.UTC)

type senderMock struct {
	mock.Mock
}

func (m *senderMock) SendMessage(chatID int64, text string) error {
	return m.Called(chatID, text).Error(0)
}

func (m *senderMock) SendDraft(chatID int64, replyTo int, text string) error {
	return m.Called(chatID, replyTo, text).Error(0)
}

func (m *senderMock) EditMessage(chatID int64, messageID int, text string) error {
	return m.Called(chatID, messageID, text).Error(0)
}

func (m *senderMock) DeleteMessage(chatID int64, messageID int) error {
	return m.Called(chatID, messageID).Error(0)
}

func (m *senderMock) AnswerCallback(callbackID string, text string) error {
	return m.Called(callbackID, text).Error(0)
}

type commitCall struct {
	file, message, detail string
}

type fakeVCS struct {
	syncErr   error
	commitErr error
	pushErr   error
	commits   []commitCall
	pushes    int
	syncs     int
}

func (f *fakeVCS) Sync(_ context.Context) error {
	f.syncs++
	return f.syncErr
}

func (f *fakeVCS) CommitAndPush(_ context.Context, file, message, detail string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, commitCall{file: file, message: message, detail: detail})
	if f.pushErr != nil {
		return &git.PushError{Err: f.pushErr}
	}
	return nil
}

func (f *fakeVCS) Push(_ context.Context) error {
	f.pushes++
	return f.pushErr
}

type eventsSpy struct {
	events []event.TransactionCommitted
}

func (e *eventsSpy) TransactionCommitted(_ context.Context, ev event.TransactionCommitted) error {
	e.events = append(e.events, ev)
	return nil
}

type gateConfig struct{}

func (gateConfig) Secret() string         { return "s3cr3t" }
func (gateConfig) SecretHash() string     { return "" }
func (gateConfig) MaxAttempts() int       { return 5 }
func (gateConfig) Lockout() time.Duration { return 15 * time.Minute }

type testEnv struct {
	root    string
	sender  *senderMock
	users   *storage.InMemStorage
	service *Service
}

func newTestEnv(t *testing.T, vcs versionControl, confirm bool) *testEnv {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ledger.AccountsFile), []byte(testAccounts), 0o644))

	sender := &senderMock{}
	users := storage.NewInMemStorage()
	service := NewService(sender, auth.NewGate(users, gateConfig{}), ledger.NewStore(root), vcs, Settings{
		DefaultCurrency: "CNY",
		Location:        time.UTC,
		Confirm:         confirm,
		MaxMessageAge:   3 * time.Minute,
	})
	service.handler.now = func() time.Time { return testNow }

	return &testEnv{root: root, sender: sender, users: users, service: service}
}

func (e *testEnv) authorize(t *testing.T) {
	require.NoError(t, e.users.Authorize(context.Background(), user.Record{ID: testUserID}))
}

func (e *testEnv) monthFile() string {
	return filepath.Join(e.root, "txs", "2024", "03.bean")
}

func message(text string, id int) Message {
	return Message{
		Text:      text,
		UserID:    testUserID,
		UserName:  "max",
		ChatID:    testChatID,
		MessageID: id,
		Date:      testNow.Add(-time.Second),
	}
}

func Test_OnStartCommand_ShouldAnswerWithIntroMessage(t *testing.T) {
	env := newTestEnv(t, nil, true)
	env.authorize(t)
	env.sender.On("SendMessage", testChatID, helloMessage+"\n\n"+helpMessage).Return(nil)

	err := env.service.HandleIncomingMessage(context.Background(), message("/start", 1))

	assert.NoError(t, err)
	env.sender.AssertExpectations(t)
}

func Test_OnUnknownCommand_ShouldAnswerWithHelpMessage(t *testing.T) {
	env := newTestEnv(t, nil, true)
	env.authorize(t)
	env.sender.On("SendMessage", testChatID, "I don't understand you :(").Return(nil)

	err := env.service.HandleIncomingMessage(context.Background(), message("/none", 1))

	assert.NoError(t, err)
	env.sender.AssertExpectations(t)
}

func Test_Unauthorized_ShouldRejectEverythingButAuth(t *testing.T) {
	env := newTestEnv(t, &fakeVCS{}, false)
	env.sender.On("SendMessage", testChatID, "Unauthorized. Send /auth <secret> first").Return(nil).Twice()

	ctx := context.Background()
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/accounts", 1)))
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message(lunchCommand, 2)))

	env.sender.AssertExpectations(t)
	assert.NoFileExists(t, env.monthFile())
}

func Test_Auth_ShouldAcceptOnlyRightSecret(t *testing.T) {
	env := newTestEnv(t, nil, true)
	env.sender.On("SendMessage", testChatID, "Wrong secret").Return(nil).Once()
	env.sender.On("DeleteMessage", testChatID, 2).Return(nil).Once()
	env.sender.On("SendMessage", testChatID, "Authorized!").Return(nil).Once()
	env.sender.On("SendMessage", testChatID, "You are already authorized").Return(nil).Once()
	env.sender.On("SendMessage", testChatID, "Usage: /auth <secret>").Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/auth guess", 1)))
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/auth s3cr3t", 2)))
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/auth s3cr3t", 3)))
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/auth", 4)))

	env.sender.AssertExpectations(t)
	ok, err := env.users.IsAuthorized(ctx, testUserID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func Test_PushFailure_ShouldKeepEntryAndNotifyUser(t *testing.T) {
	vcs := &fakeVCS{pushErr: errors.New("remote unreachable")}
	events := &eventsSpy{}
	env := newTestEnv(t, vcs, false)
	env.service.WithEvents(events)
	ctx := context.Background()

	env.sender.On("DeleteMessage", testChatID, 1).Return(nil)
	env.sender.On("SendMessage", testChatID, "Authorized!").Return(nil).Once()
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/auth s3cr3t", 1)))

	env.sender.On("SendMessage", testChatID, mock.MatchedBy(func(text string) bool {
		return strings.HasPrefix(text, errorPrefix+lunchEntry) &&
			strings.Contains(text, "push failed") &&
			strings.Contains(text, "remote unreachable")
	})).Return(nil).Once()
	err := env.service.HandleIncomingMessage(ctx, message(lunchCommand, 2))

	var pushErr *git.PushError
	assert.ErrorAs(t, err, &pushErr)
	env.sender.AssertExpectations(t)

	content, err := os.ReadFile(env.monthFile())
	require.NoError(t, err)
	assert.Equal(t, lunchEntry, string(content))

	require.Len(t, vcs.commits, 1)
	assert.Equal(t, commitCall{file: env.monthFile(), message: git.DefaultMessage, detail: lunchCommand}, vcs.commits[0])

	require.Len(t, events.events, 1)
	assert.Equal(t, "txs/2024/03.bean", events.events[0].File)
	assert.Equal(t, "2024-03-15", events.events[0].Date)
	assert.False(t, events.events[0].Pushed)
}

func Test_CommitFailure_ShouldRevertAppend(t *testing.T) {
	vcs := &fakeVCS{commitErr: errors.New("nothing to commit")}
	env := newTestEnv(t, vcs, false)
	env.authorize(t)

	env.sender.On("SendMessage", testChatID, errorPrefix+lunchEntry+"\n"+commitFailedMessage).Return(nil).Once()
	err := env.service.HandleIncomingMessage(context.Background(), message(lunchCommand, 1))

	assert.Error(t, err)
	env.sender.AssertExpectations(t)
	assert.NoFileExists(t, env.monthFile())
}

func Test_WithoutConfirm_ShouldCommitRightAway(t *testing.T) {
	vcs := &fakeVCS{}
	env := newTestEnv(t, vcs, false)
	env.authorize(t)

	env.sender.On("SendMessage", testChatID, lunchEntry+"\n"+committedMessage).Return(nil).Once()
	require.NoError(t, env.service.HandleIncomingMessage(context.Background(), message(lunchCommand, 1)))

	env.sender.AssertExpectations(t)
	assert.Len(t, vcs.commits, 1)
	assert.FileExists(t, env.monthFile())
}

func Test_InvalidCommand_ShouldExplainAndWriteNothing(t *testing.T) {
	vcs := &fakeVCS{}
	env := newTestEnv(t, vcs, false)
	env.authorize(t)

	env.sender.On("SendMessage", testChatID, "Not enough arguments: expense account").Return(nil).Once()
	env.sender.On("SendMessage", testChatID, mock.MatchedBy(func(text string) bool {
		return strings.HasPrefix(text, "Invalid expense account")
	})).Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("12 cash", 1)))
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("12 cash rent", 2)))

	env.sender.AssertExpectations(t)
	assert.Empty(t, vcs.commits)
	assert.NoFileExists(t, env.monthFile())
}

func Test_Draft_ShouldCommitOnceOnConfirm(t *testing.T) {
	vcs := &fakeVCS{}
	env := newTestEnv(t, vcs, true)
	env.authorize(t)
	ctx := context.Background()

	env.sender.On("SendDraft", testChatID, 1, lunchEntry).Return(nil).Once()
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message(lunchCommand, 1)))
	assert.NoFileExists(t, env.monthFile())

	cb := Callback{
		ID:        "cb1",
		Data:      commitButtonData,
		UserID:    testUserID,
		ChatID:    testChatID,
		MessageID: 2,
		Text:      lunchEntry,
		ReplyText: lunchCommand,
	}
	env.sender.On("EditMessage", testChatID, 2, strings.TrimRight(lunchEntry, "\n")+"\n\n"+committedMessage).Return(nil).Once()
	env.sender.On("AnswerCallback", "cb1", "Committed").Return(nil).Once()
	require.NoError(t, env.service.HandleCallback(ctx, cb))

	cb.ID = "cb2"
	env.sender.On("AnswerCallback", "cb2", "Committed").Return(nil).Once()
	require.NoError(t, env.service.HandleCallback(ctx, cb))

	env.sender.AssertExpectations(t)
	require.Len(t, vcs.commits, 1)
	assert.Equal(t, lunchCommand, vcs.commits[0].detail)

	content, err := os.ReadFile(env.monthFile())
	require.NoError(t, err)
	assert.Equal(t, lunchEntry, string(content))
}

func Test_Draft_ShouldWriteNothingOnCancel(t *testing.T) {
	vcs := &fakeVCS{}
	env := newTestEnv(t, vcs, true)
	env.authorize(t)

	env.sender.On("EditMessage", testChatID, 2, strings.TrimRight(lunchEntry, "\n")+"\n\n"+cancelledMessage).Return(nil).Once()
	env.sender.On("AnswerCallback", "cb1", "Cancelled").Return(nil).Once()
	require.NoError(t, env.service.HandleCallback(context.Background(), Callback{
		ID:        "cb1",
		Data:      cancelButtonData,
		UserID:    testUserID,
		ChatID:    testChatID,
		MessageID: 2,
		Text:      lunchEntry,
	}))

	env.sender.AssertExpectations(t)
	assert.Empty(t, vcs.commits)
	assert.NoFileExists(t, env.monthFile())
}

func Test_Callback_ShouldRejectUnauthorizedUser(t *testing.T) {
	vcs := &fakeVCS{}
	env := newTestEnv(t, vcs, true)

	env.sender.On("AnswerCallback", "cb1", "Unauthorized").Return(nil).Once()
	require.NoError(t, env.service.HandleCallback(context.Background(), Callback{
		ID:     "cb1",
		Data:   commitButtonData,
		UserID: testUserID,
		ChatID: testChatID,
		Text:   lunchEntry,
	}))

	env.sender.AssertExpectations(t)
	assert.Empty(t, vcs.commits)
}

func Test_OldMessage_ShouldBeIgnored(t *testing.T) {
	env := newTestEnv(t, nil, true)
	env.authorize(t)

	msg := message("/start", 1)
	msg.Date = testNow.Add(-10 * time.Minute)
	require.NoError(t, env.service.HandleIncomingMessage(context.Background(), msg))

	env.sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func Test_Accounts_ShouldListMatches(t *testing.T) {
	env := newTestEnv(t, nil, true)
	env.authorize(t)
	env.sender.On("SendMessage", testChatID, "Expenses:Food").Return(nil).Once()
	env.sender.On("SendMessage", testChatID, "Assets:Cash\nLiabilities:Card\nExpenses:Food").Return(nil).Once()
	env.sender.On("SendMessage", testChatID, "No matched account").Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/accounts food", 1)))
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/accounts", 2)))
	require.NoError(t, env.service.HandleIncomingMessage(ctx, message("/accounts rent", 3)))

	env.sender.AssertExpectations(t)
}

func Test_Push_ShouldRetryPush(t *testing.T) {
	vcs := &fakeVCS{}
	env := newTestEnv(t, vcs, true)
	env.authorize(t)
	env.sender.On("SendMessage", testChatID, "Pushed ✅").Return(nil).Once()

	require.NoError(t, env.service.HandleIncomingMessage(context.Background(), message("/push@beancount_bot", 1)))

	env.sender.AssertExpectations(t)
	assert.Equal(t, 1, vcs.pushes)
}

func Test_ParseCommand(t *testing.T) {
	tests := []struct {
		text, cmd, arg string
	}{
		{"/start", "/start", ""},
		{"/auth@beancount_bot  s3cr3t ", "/auth", "s3cr3t"},
		{"/accounts food", "/accounts", "food"},
		{" 12 cash food", "", "12 cash food"},
	}
	for _, tt := range tests {
		cmd, arg := parseCommand(tt.text)
		assert.Equal(t, tt.cmd, cmd, tt.text)
		assert.Equal(t, tt.arg, arg, tt.text)
	}
}

type storeSpy struct {
	*ledger.Store
	invalidations int
}

func (s *storeSpy) InvalidateAccounts() {
	s.invalidations++
	s.Store.InvalidateAccounts()
}

func newPullingEnv(t *testing.T, vcs *fakeVCS) (*testEnv, *storeSpy) {
	env := newTestEnv(t, vcs, false)
	store := &storeSpy{Store: ledger.NewStore(env.root)}
	env.service = NewService(env.sender, auth.NewGate(env.users, gateConfig{}), store, vcs, Settings{
		DefaultCurrency: "CNY",
		Location:        time.UTC,
		PullBeforeWrite: true,
	})
	env.service.handler.now = func() time.Time { return testNow }
	env.authorize(t)
	return env, store
}

func Test_Sync_ShouldInvalidateAccounts(t *testing.T) {
	vcs := &fakeVCS{}
	env, store := newPullingEnv(t, vcs)
	require.NoError(t, store.Watch())
	t.Cleanup(func() { _ = store.Close() })

	env.sender.On("SendMessage", testChatID, "No matched account").Return(nil).Once()
	require.NoError(t, env.service.HandleIncomingMessage(context.Background(), message("/accounts bank", 1)))

	require.NoError(t, os.WriteFile(filepath.Join(env.root, ledger.AccountsFile),
		[]byte(testAccounts+"2020-01-01 open Assets:Bank\n"), 0o644))
	env.sender.On("SendMessage", testChatID, "Assets:Bank").Return(nil).Once()
	require.NoError(t, env.service.HandleIncomingMessage(context.Background(), message("/accounts bank", 2)))

	env.sender.AssertExpectations(t)
	assert.Equal(t, 2, vcs.syncs)
	assert.Equal(t, 2, store.invalidations)
}

func Test_Transaction_ShouldInvalidateAccountsAfterEverySync(t *testing.T) {
	vcs := &fakeVCS{}
	env, store := newPullingEnv(t, vcs)
	env.sender.On("SendMessage", testChatID, mock.Anything).Return(nil).Once()

	require.NoError(t, env.service.HandleIncomingMessage(context.Background(), message(lunchCommand, 1)))

	env.sender.AssertExpectations(t)
	require.Len(t, vcs.commits, 1)
	assert.Equal(t, vcs.syncs, store.invalidations)
	assert.Equal(t, 2, store.invalidations)
}

func Test_Transaction_ShouldKeepLedgerOnSyncConflict(t *testing.T) {
	vcs := &fakeVCS{}
	env, store := newPullingEnv(t, vcs)
	env.service.handler.settings.Confirm = true

	env.sender.On("AnswerCallback", "cb1", "Failed").Return(nil).Once()
	env.sender.On("EditMessage", testChatID, 7, strings.TrimRight(lunchEntry, "\n")+"\n\n"+syncConflictMessage).Return(nil).Once()

	vcs.syncErr = errors.Wrap(git.ErrConflict, "CONFLICT (add/add)")
	err := env.service.HandleCallback(context.Background(), Callback{
		ID:        "cb1",
		Data:      commitButtonData,
		UserID:    testUserID,
		ChatID:    testChatID,
		MessageID: 7,
		Text:      lunchEntry,
	})

	assert.Error(t, err)
	env.sender.AssertExpectations(t)
	assert.Empty(t, vcs.commits)
	assert.Zero(t, store.invalidations)
	assert.NoFileExists(t, env.monthFile())
}
