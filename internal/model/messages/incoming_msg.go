package messages

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/entity/event"
	"max.ks1230/beancount-bot/internal/entity/user"
	"max.ks1230/beancount-bot/internal/logger"
	"max.ks1230/beancount-bot/internal/model/ledger"
)

type messageSender interface {
	SendMessage(chatID int64, text string) error
	SendDraft(chatID int64, replyTo int, text string) error
	EditMessage(chatID int64, messageID int, text string) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID string, text string) error
}

type authGate interface {
	IsAuthorized(ctx context.Context, userID int64) (bool, error)
	Authenticate(ctx context.Context, u user.Record, secret string) error
}

type ledgerStore interface {
	Root() string
	Accounts() ([]string, error)
	InvalidateAccounts()
	Append(entry string, date time.Time) (*ledger.Appended, error)
}

type versionControl interface {
	Sync(ctx context.Context) error
	CommitAndPush(ctx context.Context, file, message, detail string) error
	Push(ctx context.Context) error
}

type reportGenerator interface {
	Text(ctx context.Context, period string) (string, error)
}

type eventPublisher interface {
	TransactionCommitted(ctx context.Context, ev event.TransactionCommitted) error
}

type reportInvalidator interface {
	InvalidateReports(periods []string) error
}

// Settings are the ledger and behaviour options of the dispatcher.
type Settings struct {
	DefaultCurrency string
	Location        *time.Location
	Confirm         bool
	// MaxMessageAge of zero accepts messages of any age.
	MaxMessageAge time.Duration
	// PullBeforeWrite rebases onto the remote before every write.
	PullBeforeWrite bool
}

type Message struct {
	Text      string
	UserID    int64
	UserName  string
	ChatID    int64
	MessageID int
	Date      time.Time
}

func (m *Message) user() user.Record {
	return user.Record{ID: m.UserID, UserName: m.UserName}
}

// Callback is a press on an inline button of a draft. Text is the draft itself and
// ReplyText the command the draft answered.
type Callback struct {
	ID        string
	Data      string
	UserID    int64
	UserName  string
	ChatID    int64
	MessageID int
	Text      string
	ReplyText string
}

type Service struct {
	tgClient messageSender
	handler  *HandlerService
}

// NewService wires the dispatcher. vcs may be nil, in which case entries are only
// written to disk.
func NewService(tgClient messageSender, gate authGate, store ledgerStore, vcs versionControl, settings Settings) *Service {
	return &Service{
		tgClient: tgClient,
		handler:  newHandler(tgClient, gate, store, vcs, settings),
	}
}

func (s *Service) WithReports(reports reportGenerator) *Service {
	s.handler.reports = reports
	return s
}

func (s *Service) WithEvents(events eventPublisher) *Service {
	s.handler.events = events
	return s
}

func (s *Service) WithReportCache(cache reportInvalidator) *Service {
	s.handler.cache = cache
	return s
}

func (s *Service) HandleIncomingMessage(ctx context.Context, msg Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "handleMessage")
	defer span.Finish()

	start := time.Now()
	err := s.handle(ctx, msg)
	elapsed := time.Since(start)

	observeResponse(elapsed, err != nil)
	if err != nil {
		ext.Error.Set(span, true)
	}
	return err
}

func (s *Service) handle(ctx context.Context, msg Message) error {
	if s.handler.tooOld(msg) {
		logger.Info("ignoring old message", zap.Int64("userID", msg.UserID), zap.Time("date", msg.Date))
		return nil
	}

	resp, err := s.handler.HandleMessage(ctx, msg)
	if err != nil {
		_ = s.tgClient.SendMessage(msg.ChatID, errorPrefix+resp)
		return err
	}
	if resp == "" {
		return nil
	}
	return s.tgClient.SendMessage(msg.ChatID, resp)
}

func (s *Service) HandleCallback(ctx context.Context, cb Callback) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "handleCallback")
	defer span.Finish()
	span.SetTag("data", cb.Data)

	start := time.Now()
	answer, err := s.handler.HandleCallback(ctx, cb)
	observeResponse(time.Since(start), err != nil)
	if err != nil {
		ext.Error.Set(span, true)
	}

	if aerr := s.tgClient.AnswerCallback(cb.ID, answer); aerr != nil {
		logger.Error("failed to answer callback", zap.Error(aerr))
	}
	return err
}

// writeLock serializes everything that touches the working copy or its index.
type writeLock struct {
	sync.Mutex
	// drafts already committed, so a second press does not write twice
	committed map[draftKey]bool
}

type draftKey struct {
	chatID    int64
	messageID int
}
