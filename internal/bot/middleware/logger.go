// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение (первые 50 символов текста).
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.Chat == nil {
		return
	}

	text := []rune(message.Text)
	if len(text) > 50 {
		text = append(text[:50], []rune("...")...)
	}

	fields := log.Fields{
		"chat_id": message.Chat.ID,
		"text":    string(text),
	}
	if message.From != nil {
		fields["user_id"] = message.From.ID
		fields["username"] = message.From.UserName
	}
	log.WithFields(fields).Debug("Входящее сообщение")
}

// LogChatMember логирует смену статуса участника.
func LogChatMember(upd *tgbotapi.ChatMemberUpdated) {
	if upd == nil {
		return
	}

	fields := log.Fields{
		"chat_id": upd.Chat.ID,
		"from_id": upd.From.ID,
		"old":     upd.OldChatMember.Status,
		"new":     upd.NewChatMember.Status,
	}
	if upd.NewChatMember.User != nil {
		fields["user_id"] = upd.NewChatMember.User.ID
	}
	log.WithFields(fields).Debug("Смена статуса участника")
}
