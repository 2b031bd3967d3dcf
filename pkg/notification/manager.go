package notification

import (
	"apexcoach/log"
	"apexcoach/pkg/engine"
	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nikoksr/notify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	cueBufferLen = 32

	// Telegram rejects messages above 4096 characters; leave headroom
	// for the subject line.
	messageLimit = 3500
)

// Manager pushes the two phone-worthy moments to telegram: a new
// personal best and the end-of-interval session report. Everything
// else stays on the dashboard.
type Manager struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	buses  *engine.Buses
}

func NewManager(token string, chatID int64, buses *engine.Buses) (*Manager, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	log.Logger.Info("telegram notifier ready", zap.String("bot", bot.Self.UserName))
	return &Manager{
		bot:    bot,
		chatID: chatID,
		buses:  buses,
	}, nil
}

func (m *Manager) Run(ctx context.Context) error {
	cues := m.buses.Cues.Subscribe(pubsub.TopicCues, cueBufferLen)
	defer m.buses.Cues.Unsubscribe(pubsub.TopicCues, cues)
	reports := m.buses.Reports.Subscribe(pubsub.TopicReports, 4)
	defer m.buses.Reports.Unsubscribe(pubsub.TopicReports, reports)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cue := <-cues:
			if cue.Category != model.CuePersonalBest {
				continue
			}
			m.push(ctx, "New personal best!", cue.Text)
		case text := <-reports:
			m.push(ctx, "Session report", clip(text))
		}
	}
}

func (m *Manager) push(ctx context.Context, subject, message string) {
	tg := Telegram{}
	tg.SetClient(m.bot)
	tg.AddReceivers(m.chatID)

	n := notify.NewWithServices(tg)
	if err := n.Send(ctx, subject, message); err != nil {
		log.Logger.Warn("push failed", zap.String("subject", subject), zap.Error(err))
	}
}

func clip(message string) string {
	if len(message) <= messageLimit {
		return message
	}
	return message[:messageLimit] + "\n(truncated)"
}
