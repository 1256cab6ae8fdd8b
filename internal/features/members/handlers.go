// Package members — handlers.go обрабатывает Telegram-события, связанные с участниками:
// смену статуса в канале (chat_member) и команду /stats.
package members

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/tgcmbot/internal/common"
)

// Sender отправляет сообщения. *tgbotapi.BotAPI подходит.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Handler обрабатывает события участников.
type Handler struct {
	service   *Service
	sender    Sender
	utcSuffix bool // дописывать " [UTC]" к дате в /stats
}

// NewHandler создаёт новый обработчик событий участников.
func NewHandler(service *Service, sender Sender, utcSuffix bool) *Handler {
	return &Handler{service: service, sender: sender, utcSuffix: utcSuffix}
}

// HandleChatMember обрабатывает смену статуса пользователя.
// Переходы, не пересекающие границу "в канале / вне канала", игнорируются.
// Проверка, что событие пришло из отслеживаемого канала, делается раньше, в боте.
func (h *Handler) HandleChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) error {
	joined, ok := Classify(upd.OldChatMember, upd.NewChatMember)
	if !ok {
		log.WithFields(log.Fields{
			"chat_id": upd.Chat.ID,
			"old":     upd.OldChatMember.Status,
			"new":     upd.NewChatMember.Status,
		}).Debug("переход без смены членства, пропускаем")
		return nil
	}
	return h.service.RecordTransition(ctx, TransitionFromUpdate(upd), joined)
}

// HandleStats отвечает в chatID статистикой. Права проверяются до вызова.
func (h *Handler) HandleStats(ctx context.Context, chatID int64, since *time.Time) {
	stats, err := h.service.GetStats(ctx, since)
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка получения статистики")
		return
	}
	h.reply(chatID, FormatStats(stats, h.utcSuffix))
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.sender.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// FormatStats собирает текст ответа на /stats.
func FormatStats(s *Stats, utcSuffix bool) string {
	since := "None"
	if s.Since != nil {
		since = common.FormatUTC(*s.Since)
		if utcSuffix {
			since += " [UTC]"
		}
	}
	return fmt.Sprintf("left: %d\njoined: %d\nsince: %s", s.Left, s.Joined, since)
}

// IsMemberStatus — считается ли пользователь состоящим в чате при данном статусе.
// restricted бывает и у участника, и у вышедшего, решает флаг is_member.
func IsMemberStatus(cm tgbotapi.ChatMember) bool {
	switch cm.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return cm.IsMember
	default: // left, kicked
		return false
	}
}

// Classify определяет направление перехода.
// ok=false: членство не изменилось (например, участника сделали админом).
func Classify(before, after tgbotapi.ChatMember) (joined bool, ok bool) {
	wasMember, isMember := IsMemberStatus(before), IsMemberStatus(after)
	if wasMember == isMember {
		return false, false
	}
	return isMember, true
}

// TransitionFromUpdate переводит апдейт Telegram в доменное событие.
// Субъект берём из new_chat_member.user; from содержит того, кто совершил действие,
// и используется, только если user не пришёл.
func TransitionFromUpdate(upd *tgbotapi.ChatMemberUpdated) Transition {
	user := upd.NewChatMember.User
	if user == nil {
		user = &upd.From
	}
	return Transition{
		ChatID:    upd.Chat.ID,
		UserID:    user.ID,
		OldStatus: upd.OldChatMember.Status,
		NewStatus: upd.NewChatMember.Status,
		Date:      time.Unix(int64(upd.Date), 0).UTC(),
		Profile: Profile{
			ID:           user.ID,
			IsBot:        user.IsBot,
			FirstName:    user.FirstName,
			LastName:     user.LastName,
			Username:     user.UserName,
			LanguageCode: user.LanguageCode,
		},
	}
}
