// Package telegram implements transport.Sender over the Bot API via telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"herald/internal/transport"
	"herald/pkg/logx"
)

type Config struct {
	Token string

	// RequestTimeout caps every Bot API call so a stuck delivery cannot
	// hold a fan-out slot indefinitely.
	RequestTimeout time.Duration

	// Offline skips the getMe probe; used by tests.
	Offline bool
}

type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" && !cfg.Offline {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, log: log}, nil
}

func (s *Sender) SendText(ctx context.Context, userID int64, text string, opt *transport.SendOptions) error {
	return s.send(ctx, userID, text, opt)
}

func (s *Sender) SendPhoto(ctx context.Context, userID int64, fileID, caption string, opt *transport.SendOptions) error {
	return s.send(ctx, userID, &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}, opt)
}

func (s *Sender) SendVoice(ctx context.Context, userID int64, fileID, caption string, opt *transport.SendOptions) error {
	return s.send(ctx, userID, &tele.Voice{File: tele.File{FileID: fileID}, Caption: caption}, opt)
}

func (s *Sender) SendVideoNote(ctx context.Context, userID int64, fileID string, opt *transport.SendOptions) error {
	return s.send(ctx, userID, &tele.VideoNote{File: tele.File{FileID: fileID}}, opt)
}

func (s *Sender) SendVideo(ctx context.Context, userID int64, fileID, caption string, opt *transport.SendOptions) error {
	return s.send(ctx, userID, &tele.Video{File: tele.File{FileID: fileID}, Caption: caption}, opt)
}

func (s *Sender) send(ctx context.Context, userID int64, what any, opt *transport.SendOptions) error {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if opt.RegisterEvent != 0 {
		sendOpt.ReplyMarkup = registrationMarkup(opt.RegisterEvent)
	}

	_, err := s.bot.Send(&tele.User{ID: userID}, what, sendOpt)
	return err
}

// registrationMarkup builds the inline keyboard offered to users who are not
// yet registered for the event. The callback itself is handled by the
// conversational layer.
func registrationMarkup(eventID int64) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	btn := rm.Data("✍️ Register", "register", strconv.FormatInt(eventID, 10))
	rm.Inline(rm.Row(btn))
	return rm
}
