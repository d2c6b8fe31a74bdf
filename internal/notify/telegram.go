// Package notify delivers appointment events to Telegram. Delivery is
// best effort: a failed send is logged and dropped, never retried into
// the booking path.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zapis/internal/events"
)

// Sender is the single tgbotapi method the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards appointment events to an operations chat.
type TelegramNotifier struct {
	bot    Sender
	chatID int64
	logger zerolog.Logger
}

// NewTelegramNotifier creates a notifier targeting one chat.
func NewTelegramNotifier(bot Sender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers the notifier on the event bus.
func (n *TelegramNotifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TypeAppointmentCreated, n.handle)
	bus.Subscribe(events.TypeStatusChanged, n.handle)
	bus.Subscribe(events.TypeReminder, n.handle)
}

func (n *TelegramNotifier) handle(event events.AppointmentEvent) error {
	text := formatEvent(event)
	if text == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).
			Str("event", string(event.Type)).
			Int64("appointment_id", event.AppointmentID).
			Msg("failed to send telegram notification")
		return err
	}
	return nil
}

func formatEvent(event events.AppointmentEvent) string {
	when := event.StartTime.Format("02.01.2006 15:04")
	subject := event.ClientName
	if event.ServiceName != "" {
		subject += ", " + event.ServiceName
	}
	if event.AgentName != "" {
		subject += " (" + event.AgentName + ")"
	}

	switch event.Type {
	case events.TypeAppointmentCreated:
		return fmt.Sprintf("Новая запись: %s на %s [%s]", subject, when, event.NewStatus)
	case events.TypeStatusChanged:
		return fmt.Sprintf("Запись %s: статус %s -> %s (%s)", subject, event.OldStatus, event.NewStatus, when)
	case events.TypeReminder:
		return fmt.Sprintf("Напоминание: %s, запись на %s", subject, when)
	default:
		return ""
	}
}
