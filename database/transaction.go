package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// WithTransaction executes a function within a database transaction.
// If the function returns an error the transaction is rolled back,
// otherwise it is committed.
func (db *DB) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return withTx(ctx, db.Pool, pgx.TxOptions{}, fn)
}

// WithSerializableTransaction runs fn at serializable isolation, for
// read-modify-write sequences that must not interleave.
func (db *DB) WithSerializableTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return withTx(ctx, db.Pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

func withTx(ctx context.Context, db txBeginner, opts pgx.TxOptions, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
