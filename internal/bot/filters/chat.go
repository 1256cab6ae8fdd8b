// Package filters решает, какие апдейты бот вообще обрабатывает
// и кому разрешена статистика.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// ChatFilter пропускает события только из отслеживаемого канала.
type ChatFilter struct {
	channelID int64
}

func NewChatFilter(channelID int64) *ChatFilter {
	return &ChatFilter{channelID: channelID}
}

// CheckChatMember — пришло ли событие смены статуса из нашего канала.
func (f *ChatFilter) CheckChatMember(upd *tgbotapi.ChatMemberUpdated) bool {
	if upd == nil {
		log.WithField("component", "ChatFilter").Warn("nil chat_member update")
		return false
	}
	if upd.Chat.ID != f.channelID {
		log.WithFields(log.Fields{
			"component":  "ChatFilter",
			"chat_id":    upd.Chat.ID,
			"channel_id": f.channelID,
		}).Debug("deny: not tracked channel")
		return false
	}
	return true
}
