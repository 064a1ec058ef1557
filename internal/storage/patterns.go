package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iammattholland/escapebudget/internal/model"
)

// LoadPayeePatterns loads the payee→canonical-name table.
func (s *SQLiteStorage) LoadPayeePatterns(ctx context.Context) ([]model.PayeePattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT canonical_name, variants, use_count, last_used_at FROM payee_patterns
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payee patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.PayeePattern
	for rows.Next() {
		var (
			p            model.PayeePattern
			variantsJSON string
			lastUsed     sql.NullTime
		)
		if err := rows.Scan(&p.CanonicalName, &variantsJSON, &p.UseCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan payee pattern: %w", err)
		}
		if variantsJSON != "" {
			if err := json.Unmarshal([]byte(variantsJSON), &p.Variants); err != nil {
				return nil, fmt.Errorf("corrupt variants for %q: %w", p.CanonicalName, err)
			}
		}
		p.LastUsedAt = lastUsed.Time
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// SavePayeePattern upserts a payee pattern by canonical name.
func (s *SQLiteStorage) SavePayeePattern(ctx context.Context, p *model.PayeePattern) error {
	variantsJSON, err := json.Marshal(p.Variants)
	if err != nil {
		return fmt.Errorf("failed to encode variants: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payee_patterns (canonical_name, variants, use_count, last_used_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(canonical_name) DO UPDATE SET
			variants = excluded.variants,
			use_count = excluded.use_count,
			last_used_at = excluded.last_used_at
	`, p.CanonicalName, string(variantsJSON), p.UseCount, nullableTime(p.LastUsedAt))
	if err != nil {
		return fmt.Errorf("failed to save payee pattern %q: %w", p.CanonicalName, err)
	}
	return nil
}

// DeletePayeePattern removes a canonical name and its variants.
func (s *SQLiteStorage) DeletePayeePattern(ctx context.Context, canonicalName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM payee_patterns WHERE canonical_name = ?`, canonicalName)
	if err != nil {
		return fmt.Errorf("failed to delete payee pattern %q: %w", canonicalName, err)
	}
	return nil
}

// LoadCategoryPatterns loads the payee-substring→category table.
func (s *SQLiteStorage) LoadCategoryPatterns(ctx context.Context) ([]model.CategoryPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payee_substring, category, success_count, reject_count,
		       amount_min, amount_max, weekday_counts, last_used_at
		FROM category_patterns
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.CategoryPattern
	for rows.Next() {
		var (
			p            model.CategoryPattern
			amountMin    sql.NullString
			amountMax    sql.NullString
			weekdaysJSON sql.NullString
			lastUsed     sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.PayeeSubstring, &p.Category, &p.SuccessCount,
			&p.RejectCount, &amountMin, &amountMax, &weekdaysJSON, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan category pattern: %w", err)
		}
		if p.AmountMin, err = nullableDecimal(amountMin); err != nil {
			return nil, fmt.Errorf("corrupt amount_min for pattern %d: %w", p.ID, err)
		}
		if p.AmountMax, err = nullableDecimal(amountMax); err != nil {
			return nil, fmt.Errorf("corrupt amount_max for pattern %d: %w", p.ID, err)
		}
		if weekdaysJSON.Valid && weekdaysJSON.String != "" {
			if err := json.Unmarshal([]byte(weekdaysJSON.String), &p.WeekdayCounts); err != nil {
				return nil, fmt.Errorf("corrupt weekday counts for pattern %d: %w", p.ID, err)
			}
		}
		p.LastUsedAt = lastUsed.Time
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// SaveCategoryPattern upserts a category pattern. New patterns get their
// assigned id written back.
func (s *SQLiteStorage) SaveCategoryPattern(ctx context.Context, p *model.CategoryPattern) error {
	weekdaysJSON, err := json.Marshal(p.WeekdayCounts)
	if err != nil {
		return fmt.Errorf("failed to encode weekday counts: %w", err)
	}

	if p.ID == 0 {
		res, insertErr := s.db.ExecContext(ctx, `
			INSERT INTO category_patterns (
				payee_substring, category, success_count, reject_count,
				amount_min, amount_max, weekday_counts, last_used_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(payee_substring, category) DO UPDATE SET
				success_count = excluded.success_count,
				reject_count = excluded.reject_count,
				amount_min = excluded.amount_min,
				amount_max = excluded.amount_max,
				weekday_counts = excluded.weekday_counts,
				last_used_at = excluded.last_used_at
		`, p.PayeeSubstring, p.Category, p.SuccessCount, p.RejectCount,
			decimalText(p.AmountMin), decimalText(p.AmountMax),
			string(weekdaysJSON), nullableTime(p.LastUsedAt))
		if insertErr != nil {
			return fmt.Errorf("failed to insert category pattern: %w", insertErr)
		}
		if id, idErr := res.LastInsertId(); idErr == nil {
			p.ID = id
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE category_patterns SET
			payee_substring = ?, category = ?, success_count = ?, reject_count = ?,
			amount_min = ?, amount_max = ?, weekday_counts = ?, last_used_at = ?
		WHERE id = ?
	`, p.PayeeSubstring, p.Category, p.SuccessCount, p.RejectCount,
		decimalText(p.AmountMin), decimalText(p.AmountMax),
		string(weekdaysJSON), nullableTime(p.LastUsedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update category pattern %d: %w", p.ID, err)
	}
	return nil
}

// LoadTransferPatterns loads the account-pair→transfer-signature table.
func (s *SQLiteStorage) LoadTransferPatterns(ctx context.Context) ([]model.TransferPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pair_key, amount_min, amount_max, fee_delta, window_days,
		       payee_hints, day_of_month, day_of_month_match, day_of_month_sample,
		       success_count, reject_count, last_used_at, last_rejected_at
		FROM transfer_patterns
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.TransferPattern
	for rows.Next() {
		var (
			p            model.TransferPattern
			amountMin    sql.NullString
			amountMax    sql.NullString
			feeDelta     sql.NullString
			hintsJSON    sql.NullString
			lastUsed     sql.NullTime
			lastRejected sql.NullTime
		)
		if err := rows.Scan(&p.PairKey, &amountMin, &amountMax, &feeDelta,
			&p.WindowDays, &hintsJSON, &p.DayOfMonth, &p.DayOfMonthMatch,
			&p.DayOfMonthSample, &p.SuccessCount, &p.RejectCount,
			&lastUsed, &lastRejected); err != nil {
			return nil, fmt.Errorf("failed to scan transfer pattern: %w", err)
		}
		if p.AmountMin, err = nullableDecimal(amountMin); err != nil {
			return nil, fmt.Errorf("corrupt amount_min for pair %q: %w", p.PairKey, err)
		}
		if p.AmountMax, err = nullableDecimal(amountMax); err != nil {
			return nil, fmt.Errorf("corrupt amount_max for pair %q: %w", p.PairKey, err)
		}
		if feeDelta.Valid && feeDelta.String != "" {
			fee, feeErr := decimal.NewFromString(feeDelta.String)
			if feeErr != nil {
				return nil, fmt.Errorf("corrupt fee_delta for pair %q: %w", p.PairKey, feeErr)
			}
			p.FeeDelta = fee
		}
		if hintsJSON.Valid && hintsJSON.String != "" {
			if err := json.Unmarshal([]byte(hintsJSON.String), &p.PayeeHints); err != nil {
				return nil, fmt.Errorf("corrupt payee hints for pair %q: %w", p.PairKey, err)
			}
		}
		p.LastUsedAt = lastUsed.Time
		if lastRejected.Valid {
			t := lastRejected.Time
			p.LastRejectedAt = &t
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// SaveTransferPattern upserts a transfer pattern by pair key.
func (s *SQLiteStorage) SaveTransferPattern(ctx context.Context, p *model.TransferPattern) error {
	hintsJSON, err := json.Marshal(p.PayeeHints)
	if err != nil {
		return fmt.Errorf("failed to encode payee hints: %w", err)
	}

	var lastRejected any
	if p.LastRejectedAt != nil {
		lastRejected = *p.LastRejectedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transfer_patterns (
			pair_key, amount_min, amount_max, fee_delta, window_days,
			payee_hints, day_of_month, day_of_month_match, day_of_month_sample,
			success_count, reject_count, last_used_at, last_rejected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_key) DO UPDATE SET
			amount_min = excluded.amount_min,
			amount_max = excluded.amount_max,
			fee_delta = excluded.fee_delta,
			window_days = excluded.window_days,
			payee_hints = excluded.payee_hints,
			day_of_month = excluded.day_of_month,
			day_of_month_match = excluded.day_of_month_match,
			day_of_month_sample = excluded.day_of_month_sample,
			success_count = excluded.success_count,
			reject_count = excluded.reject_count,
			last_used_at = excluded.last_used_at,
			last_rejected_at = excluded.last_rejected_at
	`, p.PairKey, decimalText(p.AmountMin), decimalText(p.AmountMax),
		p.FeeDelta.String(), p.WindowDays, string(hintsJSON),
		p.DayOfMonth, p.DayOfMonthMatch, p.DayOfMonthSample,
		p.SuccessCount, p.RejectCount, nullableTime(p.LastUsedAt), lastRejected)
	if err != nil {
		return fmt.Errorf("failed to save transfer pattern %q: %w", p.PairKey, err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func decimalText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
