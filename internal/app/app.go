// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозиторий, сервис, обработчики,
// фильтры и собирает всё в один объект App. Глобальных переменных нет:
// всё, что нужно обработчикам, передаётся через конструкторы.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/tgcmbot/internal/bot"
	"serotonyl.ru/tgcmbot/internal/bot/filters"
	"serotonyl.ru/tgcmbot/internal/config"
	"serotonyl.ru/tgcmbot/internal/db/postgres"
	"serotonyl.ru/tgcmbot/internal/features/members"
)

// App содержит все компоненты приложения.
type App struct {
	Bot    *bot.Bot
	DB     *pgxpool.Pool
	BotAPI *tgbotapi.BotAPI
}

// Migrations — схема БД по версиям.
var Migrations = []postgres.Migration{
	{Version: 1, SQL: members.Migration001MembersHistory},
}

// New создаёт и инициализирует приложение.
// Если что-то падает после открытия пула, пул закрывается до возврата ошибки.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DatabaseDSN(),
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	defer func() {
		if err != nil {
			pool.Close()
			log.Info("Пул БД закрыт после ошибки инициализации")
		}
	}()

	if err := postgres.RunMigrations(ctx, pool, Migrations); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.Token())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	registerCommands(botAPI)

	// === 3. Участники: репозиторий → сервис → обработчик ===
	memberRepo := members.NewRepository(pool)
	memberService := members.NewService(memberRepo)
	memberHandler := members.NewHandler(memberService, botAPI, cfg.StatsUTCSuffix)

	// === 4. Фильтры ===
	chatFilter := filters.NewChatFilter(cfg.ChannelID)
	adminGuard := filters.NewAdminGuard(cfg, botAPI)

	// === 5. Собираем бота ===
	b := bot.New(botAPI, cfg, memberHandler, chatFilter, adminGuard)

	return &App{
		Bot:    b,
		DB:     pool,
		BotAPI: botAPI,
	}, nil
}

// Close освобождает ресурсы приложения.
func (a *App) Close() {
	a.DB.Close()
	log.Info("Пул БД закрыт")
}

// registerCommands публикует меню команд. Ошибка не фатальна: команды работают и без меню.
func registerCommands(api *tgbotapi.BotAPI) {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "stats", Description: "статистика за всё время"},
		tgbotapi.BotCommand{Command: "stats_1h", Description: "за последний час"},
		tgbotapi.BotCommand{Command: "stats_6h", Description: "за 6 часов"},
		tgbotapi.BotCommand{Command: "stats_12h", Description: "за 12 часов"},
		tgbotapi.BotCommand{Command: "stats_24h", Description: "за сутки"},
	)
	if _, err := api.Request(cmds); err != nil {
		log.WithError(err).Warn("Не удалось установить меню команд")
	}
}
