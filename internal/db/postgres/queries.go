// Package postgres — вспомогательные функции для работы с БД.
// queries.go содержит общие утилиты для выполнения запросов.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExecMigrationSQL выполняет один SQL-запрос миграции в транзакции.
// Возвращает applied=false, если версия уже была записана в schema_migrations.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) (applied bool, err error) {
	err = WithTx(ctx, pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("ошибка проверки миграции: %w", err)
		}
		if exists {
			return nil
		}

		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", version,
		); err != nil {
			return fmt.Errorf("ошибка записи версии миграции: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// TxBeginner — всё, что нужно от пула для WithTx. *pgxpool.Pool подходит.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTx выполняет fn в транзакции READ COMMITTED.
// Если fn вернула ошибку, транзакция откатывается, иначе фиксируется.
func WithTx(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// После Commit откат ничего не делает
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}
