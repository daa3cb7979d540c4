package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

const walletCols = `id, user_id, balance, total_earned, total_spent, created_at, updated_at`

// WalletRepository — кошелёк продавца: пополнения и списания комиссии.
type WalletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

func walletDest(w *model.Wallet) []any {
	return []any{&w.ID, &w.UserID, &w.Balance, &w.TotalEarned, &w.TotalSpent, &w.CreatedAt, &w.UpdatedAt}
}

// ensureWallet создаёт пустой кошелёк, если его нет, и возвращает его заблокированным.
func ensureWallet(ctx context.Context, q querier, userID string) (*model.Wallet, error) {
	if _, err := q.Exec(ctx,
		`INSERT INTO wallets (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID); err != nil {
		return nil, err
	}
	w := &model.Wallet{}
	if err := q.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(walletDest(w)...); err != nil {
		return nil, err
	}
	return w, nil
}

// addMovement меняет баланс и пишет движение. Для debit amount вычитается.
func addMovement(ctx context.Context, q querier, w *model.Wallet, mv *model.WalletMovement) error {
	delta := mv.Amount
	spent := 0.0
	if mv.Type == model.MovementDebit {
		delta = -mv.Amount
		spent = mv.Amount
	}
	err := q.QueryRow(ctx,
		`UPDATE wallets SET balance = balance + $2, total_spent = total_spent + $3, updated_at = $4
		 WHERE id = $1 RETURNING `+walletCols,
		w.ID, delta, spent, mv.CreatedAt).Scan(walletDest(w)...)
	if err != nil {
		return err
	}
	mv.WalletID = w.ID
	mv.UserID = w.UserID
	_, err = q.Exec(ctx,
		`INSERT INTO wallet_movements (id, wallet_id, user_id, type, amount, description, reference_id, reference_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		mv.ID, mv.WalletID, mv.UserID, mv.Type, mv.Amount, mv.Description, mv.ReferenceID, mv.ReferenceType, mv.CreatedAt)
	return err
}

// Get возвращает кошелёк пользователя, создавая пустой при первом обращении.
func (r *WalletRepository) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	defer logger.DeferLogDuration("wallet.Get", time.Now())()
	w, err := ensureWallet(ctx, r.pool, userID)
	if err != nil {
		return nil, fmt.Errorf("walletRepo.Get: %w", err)
	}
	return w, nil
}

func (r *WalletRepository) Movements(ctx context.Context, userID string, limit int) ([]model.WalletMovement, error) {
	defer logger.DeferLogDuration("wallet.Movements", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, wallet_id, user_id, type, amount, description, reference_id, reference_type, created_at
		 FROM wallet_movements WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("walletRepo.Movements: %w", err)
	}
	defer rows.Close()
	list := []model.WalletMovement{}
	for rows.Next() {
		var m model.WalletMovement
		if err := rows.Scan(&m.ID, &m.WalletID, &m.UserID, &m.Type, &m.Amount, &m.Description, &m.ReferenceID, &m.ReferenceType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("walletRepo.Movements: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// Recharge пополняет кошелёк и пишет движение credit в одной транзакции.
func (r *WalletRepository) Recharge(ctx context.Context, userID string, amount float64) (*model.Wallet, error) {
	defer logger.DeferLogDuration("wallet.Recharge", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("walletRepo.Recharge: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := ensureWallet(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("walletRepo.Recharge: %w", err)
	}
	mv := &model.WalletMovement{
		ID: uuid.New().String(), Type: model.MovementCredit, Amount: amount,
		Description: "Recarga de saldo", ReferenceType: model.ReferenceRecharge, CreatedAt: time.Now().UTC(),
	}
	if err := addMovement(ctx, tx, w, mv); err != nil {
		return nil, fmt.Errorf("walletRepo.Recharge movement: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("walletRepo.Recharge commit: %w", err)
	}
	return w, nil
}
