package filters

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/tgcmbot/internal/common"
	"serotonyl.ru/tgcmbot/internal/config"
)

// AdminLister запрашивает администраторов чата. *tgbotapi.BotAPI подходит.
type AdminLister interface {
	GetChatAdministrators(cfg tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
}

// AdminGuard проверяет право на /stats.
//
// Доступ есть, если ID отправителя или чата (по ADMIN_MATCH) есть в ADMIN_IDS,
// либо, при включённом ADMIN_CHANNEL_LOOKUP, отправитель сейчас администратор канала.
type AdminGuard struct {
	ids       map[int64]struct{}
	matchChat bool
	lookup    bool
	channelID int64
	api       AdminLister
}

func NewAdminGuard(cfg *config.Config, api AdminLister) *AdminGuard {
	ids := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		ids[id] = struct{}{}
	}
	return &AdminGuard{
		ids:       ids,
		matchChat: cfg.AdminMatch == config.AdminMatchChat,
		lookup:    cfg.AdminChannelLookup,
		channelID: cfg.ChannelID,
		api:       api,
	}
}

// Authorize возвращает nil, если доступ разрешён, иначе ошибку с common.ErrNotAdmin.
func (g *AdminGuard) Authorize(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.Chat == nil || message.From == nil {
		return common.ErrNotAdmin
	}

	logger := log.WithFields(log.Fields{
		"component": "AdminGuard",
		"chat_id":   message.Chat.ID,
		"user_id":   message.From.ID,
	})

	key := message.From.ID
	if g.matchChat {
		key = message.Chat.ID
	}
	if _, ok := g.ids[key]; ok {
		logger.Debug("allow: admin list")
		return nil
	}

	if !g.lookup {
		logger.Info("deny: not in admin list")
		return common.ErrNotAdmin
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrNotAdmin, err)
	}
	admins, err := g.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: g.channelID},
	})
	if err != nil {
		logger.WithError(err).Error("admin check failed (telegram getChatAdministrators)")
		return fmt.Errorf("%w: %v", common.ErrNotAdmin, err)
	}
	for _, a := range admins {
		if a.User != nil && a.User.ID == message.From.ID {
			logger.WithField("tg_status", a.Status).Debug("allow: channel admin")
			return nil
		}
	}

	logger.Info("deny: not in admin list and not a channel admin")
	return common.ErrNotAdmin
}
