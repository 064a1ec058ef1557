package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iammattholland/escapebudget/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"rule"},
		Short:   "Manage auto rules applied during import",
		Long: `Manage user-authored rules that rename payees, set categories, tags,
memos, and statuses on matching candidates during import. Rules apply in
priority order; later actions overwrite earlier ones.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesEnableCmd(true))
	cmd.AddCommand(rulesEnableCmd(false))

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List auto rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			enabledOnly, _ := cmd.Flags().GetBool("enabled")
			rules, err := store.AllRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if len(rules) == 0 {
				slog.Info("No rules found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tORDER\tNAME\tCONDITIONS\tACTIONS\tENABLED\tAPPLIED")
			for _, r := range rules {
				if enabledOnly && !r.Enabled {
					continue
				}
				_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%t\t%d\n",
					r.ID,
					r.Order,
					truncateString(r.Name, 24),
					describeConditions(r.Conditions),
					describeActions(r.Actions),
					r.Enabled,
					r.TimesApplied)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Bool("enabled", false, "show only enabled rules")
	return cmd
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an auto rule",
		Long: `Add a rule. Conditions are a conjunction; unspecified conditions
match everything. At least one action is required.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			conditions, err := parseRuleConditions(cmd)
			if err != nil {
				return err
			}
			actions, err := parseRuleActions(cmd)
			if err != nil {
				return err
			}

			order, _ := cmd.Flags().GetInt("order")
			rule := model.AutoRule{
				Name:       args[0],
				Conditions: conditions,
				Actions:    actions,
				Order:      order,
				Enabled:    true,
				CreatedAt:  time.Now(),
			}

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveRule(ctx, &rule); err != nil {
				return fmt.Errorf("failed to save rule: %w", err)
			}

			slog.Info("Rule created", "id", rule.ID, "name", rule.Name, "order", rule.Order)
			return nil
		},
	}

	cmd.Flags().String("payee", "", "payee condition text")
	cmd.Flags().String("payee-mode", "contains", "payee match mode (contains, equals, prefix, suffix)")
	cmd.Flags().String("account", "", "account condition (exact match)")
	cmd.Flags().String("amount", "", "amount condition value")
	cmd.Flags().String("amount-mode", "eq", "amount match mode (eq, lt, gt, ge, between)")
	cmd.Flags().String("amount-high", "", "upper bound for the between mode (inclusive)")
	cmd.Flags().Int("order", 0, "application priority, lower applies first")

	cmd.Flags().String("rename-payee", "", "action: rename the payee")
	cmd.Flags().String("set-category", "", "action: set the category")
	cmd.Flags().StringSlice("set-tags", nil, "action: replace the tags")
	cmd.Flags().String("memo", "", "action: set the memo")
	cmd.Flags().Bool("append-memo", false, "append the memo instead of replacing it")
	cmd.Flags().String("set-status", "", "action: set the status (pending, cleared, reconciled)")

	return cmd
}

func rulesEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <id>", "Enable an auto rule"
	if !enable {
		use, short = "disable <id>", "Disable an auto rule"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetRuleEnabled(ctx, id, enable); err != nil {
				return err
			}
			slog.Info("Rule updated", "id", id, "enabled", enable)
			return nil
		},
	}
}

func parseRuleConditions(cmd *cobra.Command) (model.RuleConditions, error) {
	var conditions model.RuleConditions

	if payee, _ := cmd.Flags().GetString("payee"); payee != "" {
		modeStr, _ := cmd.Flags().GetString("payee-mode")
		mode, err := model.ParsePayeeMatchMode(modeStr)
		if err != nil {
			return model.RuleConditions{}, err
		}
		conditions.Payee = &model.PayeeCondition{Text: payee, Mode: mode}
	}

	if account, _ := cmd.Flags().GetString("account"); account != "" {
		conditions.Account = &model.AccountCondition{Account: account}
	}

	if amountStr, _ := cmd.Flags().GetString("amount"); amountStr != "" {
		modeStr, _ := cmd.Flags().GetString("amount-mode")
		mode, err := model.ParseAmountMatchMode(modeStr)
		if err != nil {
			return model.RuleConditions{}, err
		}
		value, err := decimal.NewFromString(amountStr)
		if err != nil {
			return model.RuleConditions{}, fmt.Errorf("invalid amount %q: %w", amountStr, err)
		}
		cond := &model.AmountCondition{Mode: mode, Value: value}
		if mode == model.AmountBetween {
			highStr, _ := cmd.Flags().GetString("amount-high")
			high, highErr := decimal.NewFromString(highStr)
			if highErr != nil {
				return model.RuleConditions{}, fmt.Errorf("between mode needs --amount-high: %w", highErr)
			}
			cond.High = high
		}
		conditions.Amount = cond
	}

	return conditions, nil
}

func parseRuleActions(cmd *cobra.Command) (model.RuleActions, error) {
	var actions model.RuleActions
	actions.RenamePayee, _ = cmd.Flags().GetString("rename-payee")
	actions.SetCategory, _ = cmd.Flags().GetString("set-category")
	actions.SetTags, _ = cmd.Flags().GetStringSlice("set-tags")
	actions.Memo, _ = cmd.Flags().GetString("memo")
	actions.AppendMemo, _ = cmd.Flags().GetBool("append-memo")

	if statusStr, _ := cmd.Flags().GetString("set-status"); statusStr != "" {
		status := model.ParseTransactionStatus(statusStr)
		actions.SetStatus = &status
	}

	if actions.RenamePayee == "" && actions.SetCategory == "" && actions.SetTags == nil &&
		actions.Memo == "" && actions.SetStatus == nil {
		return model.RuleActions{}, fmt.Errorf("a rule needs at least one action")
	}
	return actions, nil
}

func describeConditions(c model.RuleConditions) string {
	var parts []string
	if c.Payee != nil {
		parts = append(parts, fmt.Sprintf("payee %s %q", c.Payee.Mode, c.Payee.Text))
	}
	if c.Account != nil {
		parts = append(parts, fmt.Sprintf("account=%s", c.Account.Account))
	}
	if c.Amount != nil {
		switch c.Amount.Mode {
		case model.AmountBetween:
			parts = append(parts, fmt.Sprintf("amount in [%s, %s]", c.Amount.Value, c.Amount.High))
		default:
			parts = append(parts, fmt.Sprintf("amount %s %s", c.Amount.Mode, c.Amount.Value))
		}
	}
	if len(parts) == 0 {
		return "always"
	}
	return strings.Join(parts, " and ")
}

func describeActions(a model.RuleActions) string {
	var parts []string
	if a.RenamePayee != "" {
		parts = append(parts, "payee→"+a.RenamePayee)
	}
	if a.SetCategory != "" {
		parts = append(parts, "category→"+a.SetCategory)
	}
	if a.SetTags != nil {
		parts = append(parts, "tags→"+strings.Join(a.SetTags, ","))
	}
	if a.Memo != "" {
		if a.AppendMemo {
			parts = append(parts, "memo+="+a.Memo)
		} else {
			parts = append(parts, "memo→"+a.Memo)
		}
	}
	if a.SetStatus != nil {
		parts = append(parts, "status→"+a.SetStatus.String())
	}
	return strings.Join(parts, ", ")
}
