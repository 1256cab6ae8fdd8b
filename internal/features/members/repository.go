// Package members — repository.go отвечает за все операции с таблицей members_history в БД.
package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/tgcmbot/internal/db/postgres"
)

// Migration001MembersHistory создаёт таблицу истории участников.
var Migration001MembersHistory = `
CREATE TABLE IF NOT EXISTS members_history (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    is_member BOOLEAN NOT NULL DEFAULT TRUE,
    fullname VARCHAR,
    username VARCHAR,
    meta JSONB NOT NULL DEFAULT '{}',
    created_dt TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_dt TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_members_history_is_member ON members_history(is_member);
CREATE INDEX IF NOT EXISTS idx_members_history_created_dt ON members_history(created_dt);
CREATE INDEX IF NOT EXISTS idx_members_history_updated_dt ON members_history(updated_dt);
`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert читает запись user_id под блокировкой, передаёт её в apply (nil, если записи нет)
// и сохраняет результат в той же транзакции.
//
// Если между SELECT и INSERT запись успел создать другой воркер, INSERT ничего не вставит,
// и apply будет вызвана повторно уже с существующей записью.
func (r *Repository) Upsert(ctx context.Context, userID int64, apply func(existing *Member) *Member) (created bool, err error) {
	err = postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		existing, err := r.getForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if existing == nil {
			inserted, err := r.insert(ctx, tx, apply(nil))
			if err != nil {
				return err
			}
			if inserted {
				created = true
				return nil
			}

			existing, err = r.getForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("участник user_id=%d не найден после конфликта вставки", userID)
			}
		}

		return r.update(ctx, tx, apply(existing))
	})
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения участника (user_id=%d): %w", userID, err)
	}
	return created, nil
}

// GetByUserID возвращает запись или nil, если пользователя нет.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	query := `
		SELECT id, user_id, is_member, fullname, username, meta, created_dt, updated_dt
		FROM members_history
		WHERE user_id = $1
	`
	m, err := scanMember(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения участника (user_id=%d): %w", userID, err)
	}
	return m, nil
}

// CountByStatus считает участников в канале и вне его.
// since != nil: только те, чьё последнее событие было не раньше since.
func (r *Repository) CountByStatus(ctx context.Context, since *time.Time) (joined, left int64, err error) {
	query := `SELECT is_member, COUNT(*) FROM members_history GROUP BY is_member`
	args := []any{}
	if since != nil {
		query = `SELECT is_member, COUNT(*) FROM members_history WHERE updated_dt >= $1 GROUP BY is_member`
		args = append(args, since.UTC())
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта участников: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			isMember bool
			count    int64
		)
		if err := rows.Scan(&isMember, &count); err != nil {
			return 0, 0, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		if isMember {
			joined = count
		} else {
			left = count
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("ошибка чтения строк: %w", err)
	}

	return joined, left, nil
}

// EarliestCreatedAt возвращает created_dt самой старой записи или nil для пустой таблицы.
func (r *Repository) EarliestCreatedAt(ctx context.Context) (*time.Time, error) {
	query := `SELECT created_dt FROM members_history ORDER BY created_dt LIMIT 1`
	var t time.Time
	if err := r.db.QueryRow(ctx, query).Scan(&t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения даты начала отсчёта: %w", err)
	}
	t = t.UTC()
	return &t, nil
}

func (r *Repository) getForUpdate(ctx context.Context, tx pgx.Tx, userID int64) (*Member, error) {
	query := `
		SELECT id, user_id, is_member, fullname, username, meta, created_dt, updated_dt
		FROM members_history
		WHERE user_id = $1
		FOR UPDATE
	`
	m, err := scanMember(tx.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения участника (user_id=%d): %w", userID, err)
	}
	return m, nil
}

// insert возвращает false, если user_id уже занят.
func (r *Repository) insert(ctx context.Context, tx pgx.Tx, m *Member) (bool, error) {
	meta, err := sonic.Marshal(m.Meta)
	if err != nil {
		return false, fmt.Errorf("ошибка кодирования meta: %w", err)
	}

	query := `
		INSERT INTO members_history (user_id, is_member, fullname, username, meta, created_dt, updated_dt)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, query,
		m.UserID, m.IsMember, m.FullName, m.Username, meta,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("ошибка создания участника: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) update(ctx context.Context, tx pgx.Tx, m *Member) error {
	meta, err := sonic.Marshal(m.Meta)
	if err != nil {
		return fmt.Errorf("ошибка кодирования meta: %w", err)
	}

	query := `
		UPDATE members_history
		SET is_member = $2, fullname = $3, username = $4, meta = $5, updated_dt = $6
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, query,
		m.UserID, m.IsMember, m.FullName, m.Username, meta, m.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("ошибка обновления участника: %w", err)
	}
	return nil
}

// scanMember возвращает nil без ошибки, если строки нет.
func scanMember(row pgx.Row) (*Member, error) {
	var (
		m    Member
		meta []byte
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.IsMember, &m.FullName, &m.Username,
		&meta, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if len(meta) > 0 {
		if err := sonic.Unmarshal(meta, &m.Meta); err != nil {
			return nil, fmt.Errorf("ошибка разбора meta: %w", err)
		}
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}
