package tg

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/logger"
	"max.ks1230/beancount-bot/internal/model/messages"
)

const (
	defaultUpdateOffset = 0
	updatesTimeout      = 60
	// telegram round trips of one update
	timeoutSeconds = 30
	// pull before reading accounts, pull before writing, push and a rebase abort
	gitRunsPerUpdate = 4

	commitButton = "Commit"
	cancelButton = "Cancel"
	commitData   = "commit"
	cancelData   = "cancel"
)

type config interface {
	Token() string
	Debug() bool
}

type Client struct {
	client  *tgbotapi.BotAPI
	timeout time.Duration
}

// UpdateTimeout bounds the handling of one update that may run git with gitTimeout
// per call. Zero gitTimeout means git is not bounded, and neither is the update.
func UpdateTimeout(gitTimeout time.Duration) time.Duration {
	if gitTimeout <= 0 {
		return 0
	}
	return gitRunsPerUpdate*gitTimeout + time.Second*timeoutSeconds
}

func New(cfg config) (*Client, error) {
	client, err := tgbotapi.NewBotAPI(cfg.Token())
	if err != nil {
		return nil, errors.Wrap(err, "cannot NewBotApi")
	}
	client.Debug = cfg.Debug()
	logger.Info("authorized on telegram", zap.String("bot", client.Self.UserName))
	return &Client{client: client, timeout: time.Second * timeoutSeconds}, nil
}

// WithTimeout replaces the time one update may take. Zero disables the limit.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

func (c *Client) SendMessage(chatID int64, text string) error {
	_, err := c.client.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return errors.Wrap(err, "client.Send")
	}
	return nil
}

// SendDraft replies to the message replyTo with text and the Commit and Cancel buttons.
func (c *Client) SendDraft(chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(commitButton, commitData),
			tgbotapi.NewInlineKeyboardButtonData(cancelButton, cancelData),
		),
	)
	_, err := c.client.Send(msg)
	if err != nil {
		return errors.Wrap(err, "client.Send draft")
	}
	return nil
}

// EditMessage replaces the text of a message and drops its buttons.
func (c *Client) EditMessage(chatID int64, messageID int, text string) error {
	_, err := c.client.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	if err != nil {
		return errors.Wrap(err, "client.Send edit")
	}
	return nil
}

func (c *Client) DeleteMessage(chatID int64, messageID int) error {
	_, err := c.client.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	if err != nil {
		return errors.Wrap(err, "client.Request delete")
	}
	return nil
}

func (c *Client) AnswerCallback(callbackID string, text string) error {
	_, err := c.client.Request(tgbotapi.NewCallback(callbackID, text))
	if err != nil {
		return errors.Wrap(err, "client.Request callback")
	}
	return nil
}

func (c *Client) ListenUpdates(ctx context.Context, msgModel *messages.Service) {
	u := tgbotapi.NewUpdate(defaultUpdateOffset)
	u.Timeout = updatesTimeout

	updates := c.client.GetUpdatesChan(u)

	logger.Info("Start listening for messages")

	for {
		select {
		case <-ctx.Done():
			c.client.StopReceivingUpdates()
			logger.Info("Stop listening for messages")
			return
		case update := <-updates:
			c.listenOnce(ctx, update, msgModel)
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, update tgbotapi.Update, msgModel *messages.Service) {
	ctx, cancel := c.updateContext(ctx)
	defer cancel()

	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := convertMessage(update.Message)
		logger.Info("incoming message", zap.String("user", msg.UserName), zap.Int64("userID", msg.UserID))

		if err := msgModel.HandleIncomingMessage(ctx, msg); err != nil {
			logger.Error("error processing message:", zap.Error(err))
		}
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		cb := convertCallback(update.CallbackQuery)
		logger.Info("incoming callback", zap.String("user", cb.UserName), zap.String("data", cb.Data))

		if err := msgModel.HandleCallback(ctx, cb); err != nil {
			logger.Error("error processing callback:", zap.Error(err))
		}
	}
}

func (c *Client) updateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func convertMessage(m *tgbotapi.Message) messages.Message {
	return messages.Message{
		Text:      m.Text,
		UserID:    m.From.ID,
		UserName:  m.From.UserName,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Date:      time.Unix(int64(m.Date), 0),
	}
}

func convertCallback(q *tgbotapi.CallbackQuery) messages.Callback {
	cb := messages.Callback{
		ID:        q.ID,
		Data:      q.Data,
		UserID:    q.From.ID,
		UserName:  q.From.UserName,
		ChatID:    q.Message.Chat.ID,
		MessageID: q.Message.MessageID,
		Text:      q.Message.Text,
	}
	if q.Message.ReplyToMessage != nil {
		cb.ReplyText = q.Message.ReplyToMessage.Text
	}
	return cb
}
