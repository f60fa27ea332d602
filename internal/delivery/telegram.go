package delivery

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"reportd/pkg/errors"

	tele "gopkg.in/telebot.v4"
)

// Sender uploads one file.
type Sender interface {
	SendDocument(ctx context.Context, path, caption string) error
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	Timeout  time.Duration
}

// Telegram sends documents through the Bot API. It never polls for
// updates.
type Telegram struct {
	bot    *tele.Bot
	chat   tele.ChatID
	thread int
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	return &Telegram{bot: b, chat: tele.ChatID(cfg.ChatID), thread: cfg.ThreadID}, nil
}

func (t *Telegram) SendDocument(ctx context.Context, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := &tele.Document{
		File:     tele.FromDisk(path),
		FileName: filepath.Base(path),
		Caption:  caption,
	}
	_, err := t.bot.Send(t.chat, doc, &tele.SendOptions{ThreadID: t.thread})
	return err
}
