package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists ledgers in Postgres. Mutations run as serializable
// transactions with a bounded retry on serialization failure, so simultaneous
// requests against one user (purchase racing a tier upgrade, two tabs buying)
// are applied one after the other or not at all.
type PgStore struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPgStore(db *pgxpool.Pool, logger *slog.Logger) *PgStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgStore{db: db, log: logger}
}

// EnsureUser inserts a starter ledger for userID if none exists.
func (s *PgStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO artislife.users (user_id, balance_micros, tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, StarterBalanceMicros, TierGuest)
	return err
}

func (s *PgStore) GetUser(ctx context.Context, userID string) (Ledger, error) {
	var out Ledger
	out.UserID = userID
	err := s.db.QueryRow(ctx, `
		SELECT balance_micros, tier
		FROM artislife.users
		WHERE user_id = $1
	`, userID).Scan(&out.BalanceMicros, &out.Tier)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Ledger{}, ErrNotFound
		}
		return Ledger{}, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT item_id
		FROM artislife.inventory
		WHERE user_id = $1
		ORDER BY item_id
	`, userID)
	if err != nil {
		return Ledger{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Ledger{}, err
		}
		out.InventoryIDs = append(out.InventoryIDs, id)
	}
	return out, rows.Err()
}

func (s *PgStore) Purchase(ctx context.Context, userID, itemID string, priceMicros int64) (Ledger, error) {
	err := s.withSerializableRetry(ctx, func(tx pgx.Tx) error {
		balance, _, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		var owned bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM artislife.inventory
				WHERE user_id = $1 AND item_id = $2
			)
		`, userID, itemID).Scan(&owned); err != nil {
			return err
		}
		if owned {
			return ErrAlreadyOwned
		}
		if balance < priceMicros {
			return ErrInsufficientFunds
		}
		if _, err := tx.Exec(ctx, `
			UPDATE artislife.users
			SET balance_micros = balance_micros - $1, updated_at = now()
			WHERE user_id = $2
		`, priceMicros, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO artislife.inventory (user_id, item_id)
			VALUES ($1, $2)
		`, userID, itemID); err != nil {
			return err
		}
		return recordAcquisition(ctx, tx, userID, itemID, "purchase", priceMicros)
	})
	if err != nil {
		return Ledger{}, err
	}
	// Read back after commit so the caller sees the authoritative balance even
	// if another mutation landed between commit and response.
	return s.GetUser(ctx, userID)
}

func (s *PgStore) Credit(ctx context.Context, userID string, deltaMicros int64) (Ledger, error) {
	err := s.withSerializableRetry(ctx, func(tx pgx.Tx) error {
		balance, _, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance+deltaMicros < 0 {
			return ErrInsufficientFunds
		}
		if _, err := tx.Exec(ctx, `
			UPDATE artislife.users
			SET balance_micros = balance_micros + $1, updated_at = now()
			WHERE user_id = $2
		`, deltaMicros, userID); err != nil {
			return err
		}
		return recordAcquisition(ctx, tx, userID, "", "credit", deltaMicros)
	})
	if err != nil {
		return Ledger{}, err
	}
	return s.GetUser(ctx, userID)
}

func (s *PgStore) UpgradeTier(ctx context.Context, userID string, target Tier) (Ledger, error) {
	err := s.withSerializableRetry(ctx, func(tx pgx.Tx) error {
		balance, current, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		price, err := current.UpgradePriceMicros(target)
		if err != nil {
			return err
		}
		if balance < price {
			return ErrInsufficientFunds
		}
		if _, err := tx.Exec(ctx, `
			UPDATE artislife.users
			SET balance_micros = balance_micros - $1, tier = $2, updated_at = now()
			WHERE user_id = $3
		`, price, target, userID); err != nil {
			return err
		}
		return recordAcquisition(ctx, tx, userID, string(target), "tier_upgrade", price)
	})
	if err != nil {
		return Ledger{}, err
	}
	return s.GetUser(ctx, userID)
}

// SeenReplay reports whether a replay key was already applied for the user.
func (s *PgStore) SeenReplay(ctx context.Context, userID, key string) (bool, error) {
	var seen bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM artislife.replay_keys
			WHERE user_id = $1 AND key = $2
		)
	`, userID, key).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check replay key: %w", err)
	}
	return seen, nil
}

// MarkReplay records a replay key after its command has been applied.
func (s *PgStore) MarkReplay(ctx context.Context, userID, key string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO artislife.replay_keys (user_id, key, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key)
	if err != nil {
		return fmt.Errorf("mark replay key: %w", err)
	}
	return nil
}

func (s *PgStore) withSerializableRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		s.log.Debug("ledger tx conflict, retrying", "attempt", attempt+1)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) (int64, Tier, error) {
	var balance int64
	var tier Tier
	err := tx.QueryRow(ctx, `
		SELECT balance_micros, tier
		FROM artislife.users
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&balance, &tier)
	if err == pgx.ErrNoRows {
		return 0, "", ErrNotFound
	}
	return balance, tier, err
}

func recordAcquisition(ctx context.Context, tx pgx.Tx, userID, subject, kind string, amountMicros int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO artislife.acquisitions (tx_id, user_id, subject, kind, amount_micros)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), userID, subject, kind, amountMicros)
	return err
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
