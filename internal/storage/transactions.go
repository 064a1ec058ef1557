package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/iammattholland/escapebudget/internal/common"
	"github.com/iammattholland/escapebudget/internal/model"
)

// FindPotentialDuplicates returns non-voided transactions on the account
// within the duplicate-detection date window around the given date. Amount
// equality is decided in Go so decimal representations never disagree with
// their stored text form.
func (s *SQLiteStorage) FindPotentialDuplicates(ctx context.Context, accountID string, date time.Time, amount decimal.Decimal, _ string) ([]model.Transaction, error) {
	const windowDays = 3
	lo := date.AddDate(0, 0, -windowDays)
	hi := date.AddDate(0, 0, windowDays)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, payee, raw_payee, memo, category, tags,
		       amount, status, kind, transfer_id, voided, created_at
		FROM transactions
		WHERE account_id = ? AND voided = 0 AND date BETWEEN ? AND ?
		ORDER BY date, created_at
	`, accountID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query potential duplicates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		if txn.Amount.Equal(amount) {
			matches = append(matches, txn)
		}
	}
	return matches, rows.Err()
}

// UnmatchedTransfersFor returns transfer-kind transactions on other
// accounts that have no paired leg yet.
func (s *SQLiteStorage) UnmatchedTransfersFor(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, payee, raw_payee, memo, category, tags,
		       amount, status, kind, transfer_id, voided, created_at
		FROM transactions
		WHERE kind = 'transfer' AND transfer_id IS NULL AND voided = 0 AND account_id != ?
		ORDER BY date
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transfers []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		transfers = append(transfers, txn)
	}
	return transfers, rows.Err()
}

// CommitChunk persists one chunk of transactions as a single database
// transaction: either every row lands or none do.
func (s *SQLiteStorage) CommitChunk(ctx context.Context, transactions []model.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, account_id, date, payee, raw_payee, memo, category, tags,
			amount, status, kind, transfer_id, voided, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, txn := range transactions {
		tagsJSON := ""
		if len(txn.Tags) > 0 {
			data, marshalErr := json.Marshal(txn.Tags)
			if marshalErr != nil {
				return fmt.Errorf("failed to encode tags for %s: %w", txn.ID, marshalErr)
			}
			tagsJSON = string(data)
		}

		var transferID any
		if txn.TransferID != nil {
			transferID = txn.TransferID.String()
		}

		createdAt := txn.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, execErr := stmt.ExecContext(ctx,
			txn.ID, txn.AccountID, txn.Date, txn.Payee, txn.RawPayee,
			txn.Memo, txn.Category, tagsJSON, txn.Amount.String(),
			txn.Status.String(), txn.Kind.String(), transferID, createdAt,
		); execErr != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, classify(execErr))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	return nil
}

// classify maps driver errors onto the shared sentinels so callers can
// decide retryability without knowing the driver.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", common.ErrStoreBusy, err)
	case sqlite3.ErrConstraint:
		return fmt.Errorf("%w: %v", common.ErrDuplicateEntry, err)
	default:
		return err
	}
}

// LinkTransfer marks an existing transaction as one leg of a transfer pair.
func (s *SQLiteStorage) LinkTransfer(ctx context.Context, transactionID string, transferID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET transfer_id = ?, kind = 'transfer' WHERE id = ? AND voided = 0
	`, transferID.String(), transactionID)
	if err != nil {
		return fmt.Errorf("failed to link transfer for %s: %w", transactionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check link result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	return nil
}

// VoidTransaction logically deletes a transaction. History is preserved;
// rows are never hard-deleted.
func (s *SQLiteStorage) VoidTransaction(ctx context.Context, transactionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE transactions SET voided = 1 WHERE id = ?`, transactionID)
	if err != nil {
		return fmt.Errorf("failed to void transaction %s: %w", transactionID, err)
	}
	return nil
}

// TransactionsForAccount lists non-voided transactions on an account in
// date order, for inspection commands and tests.
func (s *SQLiteStorage) TransactionsForAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, payee, raw_payee, memo, category, tags,
		       amount, status, kind, transfer_id, voided, created_at
		FROM transactions
		WHERE account_id = ? AND voided = 0
		ORDER BY date, created_at
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		txn        model.Transaction
		rawPayee   sql.NullString
		memo       sql.NullString
		category   sql.NullString
		tagsJSON   sql.NullString
		amountText string
		statusText string
		kindText   string
		transferID sql.NullString
		voided     int
	)
	if err := row.Scan(
		&txn.ID, &txn.AccountID, &txn.Date, &txn.Payee, &rawPayee, &memo,
		&category, &tagsJSON, &amountText, &statusText, &kindText,
		&transferID, &voided, &txn.CreatedAt,
	); err != nil {
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.RawPayee = rawPayee.String
	txn.Memo = memo.String
	txn.Category = category.String
	txn.Voided = voided != 0
	txn.Status = model.ParseTransactionStatus(statusText)
	txn.Kind = model.ParseTransactionKind(kindText)

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("corrupt amount %q for %s: %w", amountText, txn.ID, err)
	}
	txn.Amount = amount

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &txn.Tags); err != nil {
			return model.Transaction{}, fmt.Errorf("corrupt tags for %s: %w", txn.ID, err)
		}
	}
	if transferID.Valid && transferID.String != "" {
		id, parseErr := uuid.Parse(transferID.String)
		if parseErr != nil {
			return model.Transaction{}, fmt.Errorf("corrupt transfer id for %s: %w", txn.ID, parseErr)
		}
		txn.TransferID = &id
	}
	return txn, nil
}
