// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Режимы сопоставления ADMIN_IDS.
const (
	AdminMatchUser = "user" // ADMIN_IDS содержит user ID отправителя
	AdminMatchChat = "chat" // ADMIN_IDS содержит chat ID, из которого пришла команда
)

// Config содержит ВСЕ настройки приложения.
// Загружается один раз при старте и дальше только читается.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	// Старое имя переменной, оставлено для совместимости с прежними деплоями
	TelegramTokenLegacy string `envconfig:"TELEGRAM_TOKEN"`
	// ID канала, участников которого отслеживаем
	ChannelID int64 `envconfig:"CHANNEL_ID" required:"true"`

	// --- Admin ---
	AdminIDsRaw string  `envconfig:"ADMIN_IDS"`
	AdminIDs    []int64 `envconfig:"-"` // заполним вручную
	// user: сверяем ID отправителя, chat: ID чата
	AdminMatch string `envconfig:"ADMIN_MATCH" default:"user"`
	// Пускать в /stats текущих администраторов канала (запрос getChatAdministrators)
	AdminChannelLookup bool `envconfig:"ADMIN_CHANNEL_LOOKUP" default:"true"`

	// --- Database ---
	// Полная строка подключения. Если задана, DB_* ниже игнорируются.
	DBURL      string `envconfig:"DB_URL"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"tgcmbot"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"tgcmbot"`
	DBName     string `envconfig:"DB_NAME" default:"tgcmbot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"production"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`

	// --- Stats ---
	// Дописывать " [UTC]" к дате в ответе /stats
	StatsUTCSuffix bool `envconfig:"STATS_UTC_SUFFIX" default:"true"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. 1 = строго по очереди.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"1"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// Token возвращает токен бота с учётом старого имени переменной.
func (c *Config) Token() string {
	if c.TelegramBotToken != "" {
		return c.TelegramBotToken
	}
	return c.TelegramTokenLegacy
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	if c.Token() == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не задан")
	}
	if c.ChannelID == 0 {
		return fmt.Errorf("CHANNEL_ID не задан или равен 0")
	}
	if c.AdminMatch != AdminMatchUser && c.AdminMatch != AdminMatchChat {
		return fmt.Errorf("ADMIN_MATCH должен быть %q или %q, получено %q", AdminMatchUser, AdminMatchChat, c.AdminMatch)
	}
	if len(c.AdminIDs) == 0 && !c.AdminChannelLookup {
		return fmt.Errorf("ADMIN_IDS пуст и ADMIN_CHANNEL_LOOKUP выключен: /stats не будет доступен никому")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids
	cfg.AdminMatch = strings.ToLower(strings.TrimSpace(cfg.AdminMatch))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseInt64CSV разбирает "1,2, 3" в []int64. Пустые элементы пропускаются:
// исторически ADMIN_IDS часто заканчивался запятой.
func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
