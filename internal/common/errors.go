// Package common — errors.go определяет ошибки, общие для всех модулей бота.
package common

import "errors"

var (
	// ErrNotAdmin — у пользователя нет доступа к статистике
	ErrNotAdmin = errors.New("нет доступа к статистике")
	// ErrBadLookback — не удалось разобрать окно вида stats_6h
	ErrBadLookback = errors.New("некорректное окно статистики")
)
