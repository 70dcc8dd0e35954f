package alert

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/unclebandit/mail-dispatch/internal/model"
)

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint; empty means the public API.
	APIURL string
}

// TelegramAlerter sends summaries as plain text to a chat or forum topic.
type TelegramAlerter struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
}

func NewTelegramAlerter(cfg TelegramConfig) (*TelegramAlerter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramAlerter{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, threadID: cfg.ThreadID}, nil
}

func (a *TelegramAlerter) Post(_ context.Context, s model.CycleSummary) error {
	_, err := a.bot.Send(a.chat, s.Text(), &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              a.threadID,
	})
	return err
}
