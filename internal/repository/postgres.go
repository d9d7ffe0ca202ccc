// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/tulung-app/tulung/internal/calendar"
	"github.com/tulung-app/tulung/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrProfileNotFound возвращается, если профиль пользователя не найден.
var (
	ErrProfileNotFound = errors.New("profile not found")
	// ErrExpenseNotFound возвращается, если расход не найден у пользователя.
	ErrExpenseNotFound = errors.New("expense not found")
)

const defaultRetryBase = 200 * time.Millisecond

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool      *pgxpool.Pool
	retryBase time.Duration
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

	r := &PostgresRepository{pool: pool, retryBase: defaultRetryBase}

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

// withRetry повторяет fn при временных ошибках: сериализация, дедлок, обрыв соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(r.retryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	return pgconn.SafeToRetry(err) || isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const profileColumns = `id, daily_budget::text, currency, timezone, last_activity_date,
	streak_count, is_entitled, entitlement_expires_at`

func scanProfile(row pgx.Row) (*model.UserBudgetProfile, error) {
	var (
		p        model.UserBudgetProfile
		budget   string
		lastDate *time.Time
	)
	err := row.Scan(&p.UserID, &budget, &p.Currency, &p.Timezone, &lastDate,
		&p.StreakCount, &p.IsEntitled, &p.EntitlementExpiresAt)
	if err != nil {
		return nil, err
	}

	p.DailyBudget, err = decimal.NewFromString(budget)
	if err != nil {
		return nil, fmt.Errorf("parse daily budget %q: %w", budget, err)
	}
	p.Currency = strings.TrimSpace(p.Currency)

	// DATE приходит полночью UTC; календарная дата относится к поясу пользователя.
	if lastDate != nil {
		d := inLocation(*lastDate, p.Location())
		p.LastActivityDate = &d
	}

	return &p, nil
}

func inLocation(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// GetProfile возвращает профиль пользователя.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserBudgetProfile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		userID,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return p, nil
}

// EnsureProfile создаёт профиль со значениями по умолчанию, если его нет, и возвращает его.
func (r *PostgresRepository) EnsureProfile(ctx context.Context, userID uuid.UUID) (*model.UserBudgetProfile, error) {
	def := model.NewProfile(userID)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (id, daily_budget, currency, timezone)
		 VALUES ($1, $2::numeric, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		userID, def.DailyBudget.String(), def.Currency, def.Timezone,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	return r.GetProfile(ctx, userID)
}

// UpdateProfileSettings обновляет бюджет, валюту и часовой пояс пользователя.
func (r *PostgresRepository) UpdateProfileSettings(ctx context.Context, userID uuid.UUID, dailyBudget decimal.Decimal, currency, timezone string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE profiles SET daily_budget = $2::numeric, currency = $3, timezone = $4 WHERE id = $1`,
		userID, dailyBudget.String(), currency, timezone,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// UpdateStreak сохраняет дату последней активности и длину серии одним обновлением.
func (r *PostgresRepository) UpdateStreak(ctx context.Context, userID uuid.UUID, activityDate time.Time, streakCount int) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`UPDATE profiles SET last_activity_date = $2::date, streak_count = $3 WHERE id = $1`,
			userID, calendar.DayKey(activityDate), streakCount,
		)
		if err != nil {
			return fmt.Errorf("update streak: %w", err)
		}
		return nil
	})
}

// UpdateEntitlement сохраняет состояние подписки.
func (r *PostgresRepository) UpdateEntitlement(ctx context.Context, userID uuid.UUID, ent model.Entitlement) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`UPDATE profiles SET is_entitled = $2, entitlement_expires_at = $3 WHERE id = $1`,
			userID, ent.Active, ent.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("update entitlement: %w", err)
		}
		return nil
	})
}

// ListLapsedEntitlements возвращает пользователей, чья сохранённая подписка истекла к моменту now.
func (r *PostgresRepository) ListLapsedEntitlements(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id
		 FROM profiles
		 WHERE is_entitled AND entitlement_expires_at IS NOT NULL AND entitlement_expires_at <= $1
		 ORDER BY entitlement_expires_at
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select lapsed entitlements: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// CreateExpense сохраняет новый расход.
func (r *PostgresRepository) CreateExpense(ctx context.Context, e model.Expense) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO expenses (id, user_id, amount, currency, category, merchant, note, receipt_ref, logged_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, e.Amount.String(), e.Currency, string(e.Category),
		e.Merchant, e.Note, e.ReceiptRef, e.LoggedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, e.UserID)
		}
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, user_id, amount::text, currency, category, merchant, note, receipt_ref, logged_at`

func scanExpense(row pgx.Row) (model.Expense, error) {
	var (
		e        model.Expense
		amount   string
		category string
	)
	if err := row.Scan(&e.ID, &e.UserID, &amount, &e.Currency, &category,
		&e.Merchant, &e.Note, &e.ReceiptRef, &e.LoggedAt); err != nil {
		return e, err
	}

	var err error
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return e, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.Currency = strings.TrimSpace(e.Currency)
	e.Category = model.Category(category)

	return e, nil
}

// GetExpense возвращает расход пользователя по идентификатору.
func (r *PostgresRepository) GetExpense(ctx context.Context, userID, id uuid.UUID) (*model.Expense, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}

	return &e, nil
}

// ListExpenses возвращает расходы пользователя в интервале [from, to], от новых к старым.
func (r *PostgresRepository) ListExpenses(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]model.Expense, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+`
		 FROM expenses
		 WHERE user_id = $1 AND logged_at >= $2 AND logged_at <= $3
		 ORDER BY logged_at DESC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select expenses: %w", err)
	}
	defer rows.Close()

	var expenses []model.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return expenses, nil
}

// GetScanQuota возвращает запись квоты; nil без ошибки, если пользователь ещё не сканировал.
func (r *PostgresRepository) GetScanQuota(ctx context.Context, userID uuid.UUID, loc *time.Location) (*model.ScanQuotaRecord, error) {
	rec := model.ScanQuotaRecord{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT scans_used, period_reset_date FROM scan_quotas WHERE user_id = $1`,
		userID,
	).Scan(&rec.ScansUsedThisPeriod, &rec.PeriodResetDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get scan quota: %w", err)
	}

	rec.PeriodResetDate = inLocation(rec.PeriodResetDate, loc)
	return &rec, nil
}

// SaveScanQuota сохраняет запись квоты, создавая её при отсутствии.
func (r *PostgresRepository) SaveScanQuota(ctx context.Context, rec model.ScanQuotaRecord) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO scan_quotas (user_id, scans_used, period_reset_date, updated_at)
			 VALUES ($1, $2, $3::date, NOW())
			 ON CONFLICT (user_id) DO UPDATE
			 SET scans_used = EXCLUDED.scans_used,
			     period_reset_date = EXCLUDED.period_reset_date,
			     updated_at = NOW()`,
			rec.UserID, rec.ScansUsedThisPeriod, calendar.DayKey(rec.PeriodResetDate),
		)
		if err != nil {
			return fmt.Errorf("save scan quota: %w", err)
		}
		return nil
	})
}

// IsMilestoneAcknowledged сообщает, видел ли пользователь отметку серии.
func (r *PostgresRepository) IsMilestoneAcknowledged(ctx context.Context, userID uuid.UUID, days int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM streak_milestones WHERE user_id = $1 AND days = $2)`,
		userID, days,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check milestone: %w", err)
	}
	return exists, nil
}

// AcknowledgeMilestone отмечает отметку серии как показанную. Повторный вызов ничего не меняет.
func (r *PostgresRepository) AcknowledgeMilestone(ctx context.Context, userID uuid.UUID, days int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO streak_milestones (user_id, days) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, days,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
		}
		return fmt.Errorf("acknowledge milestone: %w", err)
	}
	return nil
}
