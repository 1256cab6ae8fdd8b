// Package members ведёт историю вступлений и выходов участников канала.
// models.go описывает структуры данных для работы с таблицей members_history.
package members

import (
	"strings"
	"time"
)

// Member — одна строка members_history: один пользователь, когда-либо замеченный в канале.
type Member struct {
	ID        int64     `db:"id"`         // Автоинкрементный ID записи в БД
	UserID    int64     `db:"user_id"`    // Telegram user ID (уникальный)
	IsMember  bool      `db:"is_member"`  // Состоит ли в канале сейчас
	FullName  *string   `db:"fullname"`   // Последнее известное имя
	Username  *string   `db:"username"`   // Последний известный @username (может быть nil)
	Meta      Meta      `db:"meta"`       // История статусов и имён (JSONB)
	CreatedAt time.Time `db:"created_dt"` // Время первого события, больше не меняется
	UpdatedAt time.Time `db:"updated_dt"` // Время последнего обработанного события
}

// Meta — содержимое колонки meta. Истории только дописываются.
type Meta struct {
	UserData      Profile    `json:"user_data"`
	StatusHistory []string   `json:"status_history"`
	UserHistory   []Identity `json:"user_history"`
}

// Profile — снимок профиля пользователя из события. Пустые поля не сохраняются, кроме is_bot.
type Profile struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// FullName — имя и фамилия через пробел, как их показывает Telegram.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Identity — пара имя/username в user_history.
type Identity struct {
	FullName string  `json:"fullname"`
	Username *string `json:"username"`
}

// Equal сравнивает снимки по значению, а не по указателю на username.
func (i Identity) Equal(other Identity) bool {
	if i.FullName != other.FullName {
		return false
	}
	if i.Username == nil || other.Username == nil {
		return i.Username == nil && other.Username == nil
	}
	return *i.Username == *other.Username
}

// IdentityOf строит снимок имени из профиля.
func IdentityOf(p Profile) Identity {
	return Identity{FullName: p.FullName(), Username: optional(p.Username)}
}

// Transition — событие смены статуса участника в канале.
type Transition struct {
	ChatID    int64
	UserID    int64
	OldStatus string
	NewStatus string
	Date      time.Time // Время события от Telegram, не время обработки
	Profile   Profile
}

// LogName — "Имя Фамилия:username" для логов.
func (t Transition) LogName() string {
	name := t.Profile.FullName()
	if t.Profile.Username != "" {
		name += ":" + t.Profile.Username
	}
	return name
}

// Stats — ответ на /stats.
type Stats struct {
	Joined int64      // Сейчас в канале
	Left   int64      // Сейчас вне канала
	Since  *time.Time // Начало отсчёта; nil, если записей ещё нет
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
