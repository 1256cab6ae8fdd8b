// Package members — service.go содержит бизнес-логику: запись переходов и статистику.
package members

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Store — хранилище истории участников. *Repository реализует его поверх PostgreSQL.
type Store interface {
	Upsert(ctx context.Context, userID int64, apply func(existing *Member) *Member) (created bool, err error)
	CountByStatus(ctx context.Context, since *time.Time) (joined, left int64, err error)
	EarliestCreatedAt(ctx context.Context) (*time.Time, error)
}

// Service связывает обработчики Telegram-событий с хранилищем.
type Service struct {
	repo Store
}

// NewService создаёт новый сервис участников.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// RecordTransition сохраняет вступление (joined=true) или выход (joined=false) пользователя.
// Первое событие создаёт запись, последующие обновляют её и дописывают историю.
func (s *Service) RecordTransition(ctx context.Context, t Transition, joined bool) error {
	created, err := s.repo.Upsert(ctx, t.UserID, func(existing *Member) *Member {
		if existing == nil {
			return newMember(t, joined)
		}
		return applyTransition(existing, t, joined)
	})
	if err != nil {
		return fmt.Errorf("ошибка записи перехода: %w", err)
	}

	kind := "old_member"
	if created {
		kind = "new_member"
	}
	log.WithFields(log.Fields{
		"user_id": t.UserID,
		"name":    t.LogName(),
		"kind":    kind,
		"joined":  joined,
	}).Infof("%s -> %s", t.OldStatus, t.NewStatus)

	return nil
}

// GetStats возвращает количество участников в канале и вне его.
//
// since == nil: по всей истории, Since = created_dt самой первой записи.
// since != nil: только участники, чей статус менялся начиная с since, Since = since.
// Пустая база: нули и Since == nil.
func (s *Service) GetStats(ctx context.Context, since *time.Time) (*Stats, error) {
	joined, left, err := s.repo.CountByStatus(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}

	stats := &Stats{Joined: joined, Left: left}
	if since != nil {
		from := since.UTC()
		stats.Since = &from
	} else {
		earliest, err := s.repo.EarliestCreatedAt(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения статистики: %w", err)
		}
		stats.Since = earliest
	}

	log.WithFields(log.Fields{
		"left":   stats.Left,
		"joined": stats.Joined,
		"since":  stats.Since,
	}).Info("[stats]")

	return stats, nil
}
