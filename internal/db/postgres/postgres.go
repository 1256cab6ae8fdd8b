// Package postgres управляет подключением к базе данных PostgreSQL.
// Используется пул соединений pgxpool: один пул на процесс,
// создаётся при старте и закрывается при остановке.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// PoolConfig — параметры пула, которые берём из конфигурации приложения.
type PoolConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// NewPool создаёт новый пул соединений к PostgreSQL и проверяет доступность базы.
// Если база недоступна, пул закрывается до возврата ошибки.
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.DatabaseDSN()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// Migration — одна SQL-миграция с номером версии.
type Migration struct {
	Version int
	SQL     string
}

// RunMigrations создаёт таблицу schema_migrations и применяет миграции по порядку.
// Уже применённые версии пропускаются, поэтому вызов идемпотентен.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("не удалось получить соединение: %w", err)
	}
	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT NOW()
		)
	`)
	conn.Release()
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.Version, m.SQL)
		if err != nil {
			return fmt.Errorf("миграция %d: %w", m.Version, err)
		}
		if applied {
			log.Infof("Миграция %d применена", m.Version)
		}
	}

	log.Info("Схема БД актуальна")
	return nil
}
