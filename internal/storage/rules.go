package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iammattholland/escapebudget/internal/model"
)

// EnabledRules returns the enabled auto rules in application order.
// Conditions and actions are decoded into tagged variants here, once on
// load, not on every access.
func (s *SQLiteStorage) EnabledRules(ctx context.Context) ([]model.AutoRule, error) {
	return s.queryRules(ctx, `WHERE enabled = 1`)
}

// AllRules returns every auto rule in application order, for management
// commands.
func (s *SQLiteStorage) AllRules(ctx context.Context) ([]model.AutoRule, error) {
	return s.queryRules(ctx, ``)
}

func (s *SQLiteStorage) queryRules(ctx context.Context, where string) ([]model.AutoRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, rule_order, enabled, conditions, actions,
		       times_applied, last_applied_at, created_at
		FROM auto_rules `+where+` ORDER BY rule_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.AutoRule
	for rows.Next() {
		var (
			r           model.AutoRule
			enabled     int
			condJSON    string
			actionJSON  string
			lastApplied sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Order, &enabled, &condJSON,
			&actionJSON, &r.TimesApplied, &lastApplied, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.Enabled = enabled != 0
		if r.Conditions, err = model.DecodeConditions(condJSON); err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		if r.Actions, err = model.DecodeActions(actionJSON); err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		if lastApplied.Valid {
			t := lastApplied.Time
			r.LastAppliedAt = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SaveRule inserts or updates an auto rule. New rules get their assigned
// id written back.
func (s *SQLiteStorage) SaveRule(ctx context.Context, r *model.AutoRule) error {
	condJSON, err := model.EncodeConditions(r.Conditions)
	if err != nil {
		return err
	}
	actionJSON, err := model.EncodeActions(r.Actions)
	if err != nil {
		return err
	}

	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	var lastApplied any
	if r.LastAppliedAt != nil {
		lastApplied = *r.LastAppliedAt
	}

	if r.ID == 0 {
		res, insertErr := s.db.ExecContext(ctx, `
			INSERT INTO auto_rules (name, rule_order, enabled, conditions, actions, times_applied, last_applied_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.Name, r.Order, enabled, condJSON, actionJSON, r.TimesApplied, lastApplied)
		if insertErr != nil {
			return fmt.Errorf("failed to insert rule %q: %w", r.Name, insertErr)
		}
		if id, idErr := res.LastInsertId(); idErr == nil {
			r.ID = id
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE auto_rules SET name = ?, rule_order = ?, enabled = ?,
			conditions = ?, actions = ?, times_applied = ?, last_applied_at = ?
		WHERE id = ?
	`, r.Name, r.Order, enabled, condJSON, actionJSON, r.TimesApplied, lastApplied, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule %d: %w", r.ID, err)
	}
	return nil
}

// SetRuleEnabled toggles a rule without touching its definition.
func (s *SQLiteStorage) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	flag := 0
	if enabled {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE auto_rules SET enabled = ? WHERE id = ?`, flag, id)
	if err != nil {
		return fmt.Errorf("failed to toggle rule %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check toggle result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

// UpdateRuleCounters writes back the application counters accumulated
// during a batch.
func (s *SQLiteStorage) UpdateRuleCounters(ctx context.Context, rules []model.AutoRule) error {
	stmt, err := s.db.PrepareContext(ctx, `
		UPDATE auto_rules SET times_applied = ?, last_applied_at = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare counter update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rules {
		var lastApplied any
		if r.LastAppliedAt != nil {
			lastApplied = *r.LastAppliedAt
		}
		if _, err := stmt.ExecContext(ctx, r.TimesApplied, lastApplied, r.ID); err != nil {
			return fmt.Errorf("failed to update counters for rule %d: %w", r.ID, err)
		}
	}
	return nil
}

// RecordRuleApplications appends per-field change history produced by the
// rule engine, used for later override tracking.
func (s *SQLiteStorage) RecordRuleApplications(ctx context.Context, applications []model.RuleApplication) error {
	if len(applications) == 0 {
		return nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO rule_applications (rule_id, row_index, field, old_value, new_value, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare application insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range applications {
		if _, err := stmt.ExecContext(ctx, a.RuleID, a.RowIndex, a.Field, a.OldValue, a.NewValue, a.AppliedAt); err != nil {
			return fmt.Errorf("failed to record rule application: %w", err)
		}
	}
	return nil
}
