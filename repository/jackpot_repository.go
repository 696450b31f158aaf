package repository

import (
	"context"
	"fmt"

	"jackpotd/database"
	"jackpotd/domain/entities"

	"github.com/jackc/pgx/v5"
)

// JackpotRepository implements the JackpotRepository interface
type JackpotRepository struct {
	q Queryable
}

// NewJackpotRepository creates a new jackpot repository
func NewJackpotRepository(db *database.DB) *JackpotRepository {
	return &JackpotRepository{q: db.Pool}
}

// newJackpotRepositoryWithTx creates a new jackpot repository with a transaction
func newJackpotRepositoryWithTx(tx Queryable) *JackpotRepository {
	return &JackpotRepository{q: tx}
}

// GetByGroup retrieves the pool for a tier
func (r *JackpotRepository) GetByGroup(ctx context.Context, group entities.PoolGroup) (*entities.JackpotPool, error) {
	return r.getByGroup(ctx, group, false)
}

// GetByGroupForUpdate retrieves the pool with a row lock. Win payout
// must see the final amount, so it locks the row before reading.
func (r *JackpotRepository) GetByGroupForUpdate(ctx context.Context, group entities.PoolGroup) (*entities.JackpotPool, error) {
	return r.getByGroup(ctx, group, true)
}

func (r *JackpotRepository) getByGroup(ctx context.Context, group entities.PoolGroup, forUpdate bool) (*entities.JackpotPool, error) {
	query := `
		SELECT id, pool_group, amount, seed_amount, max_amount, total_contributions, last_won_by_user_id, updated_at
		FROM jackpot_pools
		WHERE pool_group = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var pool entities.JackpotPool
	err := r.q.QueryRow(ctx, query, string(group)).Scan(
		&pool.ID,
		&pool.Group,
		&pool.Amount,
		&pool.SeedAmount,
		&pool.MaxAmount,
		&pool.TotalContributions,
		&pool.LastWonByUserID,
		&pool.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool for group %s: %w", group, err)
	}

	return &pool, nil
}

// GetAll returns every pool in ascending tier order
func (r *JackpotRepository) GetAll(ctx context.Context) ([]*entities.JackpotPool, error) {
	query := `
		SELECT id, pool_group, amount, seed_amount, max_amount, total_contributions, last_won_by_user_id, updated_at
		FROM jackpot_pools
		ORDER BY seed_amount ASC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get pools: %w", err)
	}
	defer rows.Close()

	var pools []*entities.JackpotPool
	for rows.Next() {
		var pool entities.JackpotPool
		if err := rows.Scan(&pool.ID, &pool.Group, &pool.Amount, &pool.SeedAmount, &pool.MaxAmount, &pool.TotalContributions, &pool.LastWonByUserID, &pool.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, &pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pools: %w", err)
	}

	return pools, nil
}

// AddContribution accumulates into a pool, clamped at its cap. The
// amount never decreases here, even if the cap was lowered below the
// current balance. Returns how much was actually added and the new
// total. A single statement locks, reads the pre-image, and writes, so
// the delta is exact whether or not an enclosing transaction exists.
func (r *JackpotRepository) AddContribution(ctx context.Context, poolID int64, amount int64) (int64, int64, error) {
	if amount < 0 {
		return 0, 0, fmt.Errorf("contribution must be non-negative, got %d", amount)
	}

	// Every SET expression sees the pre-update row, so the lifetime
	// counter advances by exactly the clamped delta.
	query := `
		UPDATE jackpot_pools jp
		SET amount = CASE
		        WHEN jp.max_amount > 0 THEN GREATEST(jp.amount, LEAST(jp.amount + $2, jp.max_amount))
		        ELSE jp.amount + $2
		    END,
		    total_contributions = jp.total_contributions + CASE
		        WHEN jp.max_amount > 0 THEN GREATEST(jp.amount, LEAST(jp.amount + $2, jp.max_amount))
		        ELSE jp.amount + $2
		    END - jp.amount,
		    updated_at = NOW()
		FROM (SELECT id, amount FROM jackpot_pools WHERE id = $1 FOR UPDATE) prev
		WHERE jp.id = prev.id
		RETURNING prev.amount, jp.amount
	`

	var before, after int64
	if err := r.q.QueryRow(ctx, query, poolID, amount).Scan(&before, &after); err != nil {
		if err == pgx.ErrNoRows {
			return 0, 0, fmt.Errorf("no pool row %d", poolID)
		}
		return 0, 0, fmt.Errorf("failed to add contribution to pool %d: %w", poolID, err)
	}

	return after - before, after, nil
}

// SetAmount writes a pool's amount directly, used to reseed after a win
func (r *JackpotRepository) SetAmount(ctx context.Context, poolID int64, amount int64) error {
	query := `
		UPDATE jackpot_pools
		SET amount = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, poolID, amount)
	if err != nil {
		return fmt.Errorf("failed to set amount for pool %d: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pool row %d", poolID)
	}

	return nil
}

// ResetAfterWin reseeds a pool and stamps who hit it. Lifetime
// contribution totals survive the reset.
func (r *JackpotRepository) ResetAfterWin(ctx context.Context, poolID int64, amount int64, wonByUserID int64) error {
	query := `
		UPDATE jackpot_pools
		SET amount = $2, last_won_by_user_id = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, poolID, amount, wonByUserID)
	if err != nil {
		return fmt.Errorf("failed to reset pool %d after win: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pool row %d", poolID)
	}

	return nil
}

// RecordWin persists a paid-out jackpot hit
func (r *JackpotRepository) RecordWin(ctx context.Context, win *entities.JackpotWin) error {
	query := `
		INSERT INTO jackpot_wins (pool_id, pool_group, user_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, win.PoolID, string(win.Group), win.UserID, win.Amount).Scan(&win.ID, &win.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record jackpot win for user %d: %w", win.UserID, err)
	}

	return nil
}
