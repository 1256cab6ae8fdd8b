// Package bot содержит главный модуль бота — polling и маршрутизацию апдейтов.
// bot.go принимает апдейты от Telegram, фильтрует их и передаёт в обработчики участников.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/tgcmbot/internal/bot/filters"
	"serotonyl.ru/tgcmbot/internal/bot/middleware"
	"serotonyl.ru/tgcmbot/internal/common"
	"serotonyl.ru/tgcmbot/internal/config"
	"serotonyl.ru/tgcmbot/internal/features/members"
)

// Ответ тем, кому статистика не положена.
const denyText = "who are u?"

const helpText = "Команды: /stats, /stats_1h, /stats_6h, /stats_12h, /stats_24h (только для админов)"

// TelegramAPI — то, что бот использует из Bot API. *tgbotapi.BotAPI реализует всё.
type TelegramAPI interface {
	members.Sender
	filters.AdminLister
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api TelegramAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	adminGuard  *filters.AdminGuard
	rateLimiter *middleware.RateLimiter

	memberHandler *members.Handler

	parser *CommandParser
	now    func() time.Time

	// число воркеров; апдейты одного пользователя всегда попадают в один воркер
	workers int
	wg      sync.WaitGroup
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api TelegramAPI,
	cfg *config.Config,
	memberHandler *members.Handler,
	chatFilter *filters.ChatFilter,
	adminGuard *filters.AdminGuard,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	return &Bot{
		api:           api,
		cfg:           cfg,
		chatFilter:    chatFilter,
		adminGuard:    adminGuard,
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		memberHandler: memberHandler,
		parser:        NewCommandParser(),
		now:           time.Now,
		workers:       maxInFlight,
	}
}

// Start запускает polling обновлений от Telegram и блокируется до отмены ctx.
// Перед возвратом дожидается обработчиков, которые ещё работают.
//
// Обработчики получают контекст без отмены: апдейт, уже забранный у Telegram,
// повторно не придёт, поэтому начатая запись в БД должна завершиться.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	// chat_member Telegram присылает только по явной подписке
	u.AllowedUpdates = []string{"message", "chat_member"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.workers,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
		"channel_id":   b.cfg.ChannelID,
	}).Info("Бот запущен и ожидает события...")

	handlerCtx := context.WithoutCancel(ctx)
	queues := make([]chan tgbotapi.Update, b.workers)
	for i := range queues {
		queues[i] = make(chan tgbotapi.Update)
		b.wg.Add(1)
		go b.worker(handlerCtx, queues[i])
	}

	defer b.rateLimiter.Close()
	defer b.wg.Wait()
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			q := queues[shardOf(update, len(queues))]
			select {
			case q <- update:
			case <-ctx.Done():
				log.WithField("update_id", update.UpdateID).Warn("Апдейт не обработан: бот останавливается")
				b.api.StopReceivingUpdates()
				return
			}
		}
	}
}

func (b *Bot) worker(ctx context.Context, queue <-chan tgbotapi.Update) {
	defer b.wg.Done()
	for upd := range queue {
		b.handleUpdate(ctx, upd)
	}
}

// shardOf выбирает воркер по пользователю, чтобы его события применялись в порядке поступления.
func shardOf(update tgbotapi.Update, n int) int {
	if n <= 1 {
		return 0
	}
	var key int64
	switch {
	case update.ChatMember != nil:
		key = update.ChatMember.From.ID
		if u := update.ChatMember.NewChatMember.User; u != nil {
			key = u.ID
		}
	case update.Message != nil && update.Message.From != nil:
		key = update.Message.From.ID
	case update.Message != nil && update.Message.Chat != nil:
		key = update.Message.Chat.ID
	}
	return int(uint64(key) % uint64(n))
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	if update.ChatMember != nil {
		b.handleChatMember(ctx, update.ChatMember)
		return
	}

	if update.Message == nil || update.Message.Text == "" || update.Message.Chat == nil {
		return
	}
	message := update.Message

	middleware.LogMessage(message)

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}

	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("parsed command")

	b.routeCommand(ctx, message, cmd)
}

// handleChatMember пропускает в хранилище только события отслеживаемого канала.
func (b *Bot) handleChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	middleware.LogChatMember(upd)

	if !b.chatFilter.CheckChatMember(upd) {
		return
	}

	if err := b.memberHandler.HandleChatMember(ctx, upd); err != nil {
		// Событие теряется: повторной доставки нет
		log.WithError(err).WithFields(log.Fields{
			"chat_id": upd.Chat.ID,
			"old":     upd.OldChatMember.Status,
			"new":     upd.NewChatMember.Status,
		}).Error("Не удалось сохранить смену статуса")
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd string) {
	chatID := message.Chat.ID

	switch {
	case cmd == "start" || cmd == "help":
		b.sendMessage(chatID, helpText)

	case cmd == "stats" || strings.HasPrefix(cmd, "stats_"):
		b.handleStats(ctx, message, cmd)
	}
}

// handleStats: окно → rate limit → права → статистика.
// Пока права не подтверждены, к хранилищу не обращаемся.
func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message, cmd string) {
	chatID := message.Chat.ID

	lookback, hasLookback, err := common.ParseLookback(cmd)
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Debug("unknown stats command")
		return
	}

	if message.From != nil && !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	if err := b.adminGuard.Authorize(ctx, message); err != nil {
		if !errors.Is(err, common.ErrNotAdmin) {
			log.WithError(err).Warn("admin check failed")
		}
		b.sendMessage(chatID, denyText)
		return
	}

	var since *time.Time
	if hasLookback {
		from := b.now().UTC().Add(-lookback)
		since = &from
	}

	b.memberHandler.HandleStats(ctx, chatID, since)
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Упоминание бота в команде (/stats@my_bot) отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command, _, _ := strings.Cut(parts[0], "@")
	command = strings.ToLower(command)
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
