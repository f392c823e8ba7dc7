// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/crowdfund-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCampaignNotFound возвращается, если кампания с указанным идентификатором не найдена.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrCampaignExists возвращается при попытке создать кампанию с занятым идентификатором.
	ErrCampaignExists = errors.New("campaign already exists")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках: сбоях сериализации,
// дедлоках и обрывах соединения. Прочие ошибки возвращаются сразу.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCampaign сохраняет новую кампанию.
func (r *PostgresRepository) CreateCampaign(ctx context.Context, c model.Campaign) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO campaigns (id, owner, goal, current_amount, withdrawable, status, close_reason, deadline, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, c.Owner, c.Goal, c.Current, c.Withdrawable,
			string(c.Status), string(c.CloseReason), c.Deadline, c.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrCampaignExists, c.ID)
			}
			return fmt.Errorf("insert campaign: %w", err)
		}
		return nil
	})
}

// GetCampaign возвращает кампанию по идентификатору.
func (r *PostgresRepository) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, owner, goal, current_amount, withdrawable, status, close_reason, deadline, created_at
		 FROM campaigns
		 WHERE id = $1`,
		id,
	)

	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}

	return c, nil
}

// ListCampaigns возвращает все кампании в порядке создания.
func (r *PostgresRepository) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner, goal, current_amount, withdrawable, status, close_reason, deadline, created_at
		 FROM campaigns
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select campaigns: %w", err)
	}
	defer rows.Close()

	var res []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c           model.Campaign
		status      string
		closeReason string
	)

	err := row.Scan(&c.ID, &c.Owner, &c.Goal, &c.Current, &c.Withdrawable,
		&status, &closeReason, &c.Deadline, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Status = model.CampaignStatus(status)
	c.CloseReason = model.CloseReason(closeReason)

	return &c, nil
}

// UpdateCampaignState сохраняет изменяемую часть состояния кампании.
func (r *PostgresRepository) UpdateCampaignState(ctx context.Context, c model.Campaign) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE campaigns
			 SET current_amount = $2, withdrawable = $3, status = $4, close_reason = $5
			 WHERE id = $1`,
			c.ID, c.Current, c.Withdrawable, string(c.Status), string(c.CloseReason),
		)
		if err != nil {
			return fmt.Errorf("update campaign: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrCampaignNotFound, c.ID)
		}
		return nil
	})
}

// SaveContribution добавляет запись аудита о принятом взносе.
func (r *PostgresRepository) SaveContribution(ctx context.Context, campaignID, contributor string, amount int64) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO contributions (campaign_id, contributor, amount) VALUES ($1, $2, $3)`,
			campaignID, contributor, amount,
		)
		if err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}
		return nil
	})
}

// SaveCredentials сохраняет номера выпущенных сертификатов одной транзакцией.
func (r *PostgresRepository) SaveCredentials(ctx context.Context, campaignID, owner string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, id := range ids {
			_, err := tx.Exec(ctx,
				`INSERT INTO credentials (id, campaign_id, owner) VALUES ($1, $2, $3)`,
				id, campaignID, owner,
			)
			if err != nil {
				return fmt.Errorf("insert credential: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// SaveSettlements сохраняет записи об урегулированиях одной транзакцией.
func (r *PostgresRepository) SaveSettlements(ctx context.Context, campaignID string, entries []model.SettlementEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, e := range entries {
			_, err := tx.Exec(ctx,
				`INSERT INTO settlements (campaign_id, contributor, amount, ok, reason)
				 VALUES ($1, $2, $3, $4, $5)`,
				campaignID, e.Contributor, e.Amount, e.OK, e.Reason,
			)
			if err != nil {
				return fmt.Errorf("insert settlement: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetBalances восстанавливает остатки участников кампании: сумма взносов за
// вычетом урегулированных сумм, в порядке первого взноса. Участники с нулевым
// остатком опускаются.
func (r *PostgresRepository) GetBalances(ctx context.Context, campaignID string) ([]model.ContributorBalance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ct.contributor,
		        SUM(ct.amount) - COALESCE(st.settled, 0) AS balance
		 FROM contributions ct
		 LEFT JOIN (
		     SELECT contributor, SUM(amount) AS settled
		     FROM settlements
		     WHERE campaign_id = $1
		     GROUP BY contributor
		 ) st ON st.contributor = ct.contributor
		 WHERE ct.campaign_id = $1
		 GROUP BY ct.contributor, st.settled
		 HAVING SUM(ct.amount) - COALESCE(st.settled, 0) > 0
		 ORDER BY MIN(ct.created_at)`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	defer rows.Close()

	var res []model.ContributorBalance
	for rows.Next() {
		var b model.ContributorBalance
		if err := rows.Scan(&b.Contributor, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AppendEvent добавляет событие в журнал кампании.
func (r *PostgresRepository) AppendEvent(ctx context.Context, campaignID string, eventType model.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO events (campaign_id, type, payload) VALUES ($1, $2, $3)`,
			campaignID, string(eventType), data,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

// GetEvents возвращает журнал кампании в порядке записи.
func (r *PostgresRepository) GetEvents(ctx context.Context, campaignID string) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, campaign_id, type, payload, created_at
		 FROM events
		 WHERE campaign_id = $1
		 ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var res []model.Event
	for rows.Next() {
		var (
			e         model.Event
			eventType string
		)
		if err := rows.Scan(&e.ID, &e.CampaignID, &eventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = model.EventType(eventType)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
