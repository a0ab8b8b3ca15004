package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/cli"
)

func newAccountsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"tokens"},
		Short:   "Manage the account pool",
	}
	cmd.AddCommand(
		newAccountsListCmd(root),
		newAccountsAddCmd(root),
		newAccountsRefreshCmd(root),
		newAccountsDeleteCmd(root),
	)
	return cmd
}

// accountRows prints accounts without their secrets.
type accountRows []*accounts.Account

func (r accountRows) Table() cli.Table {
	t := cli.Table{Headers: []string{"ID", "ACCOUNT", "TYPE", "ENABLED", "COUNT", "TOKEN_EXPIRES"}}
	for _, a := range r {
		expires := "-"
		if !a.TokenExpires.IsZero() {
			expires = a.TokenExpires.UTC().Format(time.RFC3339)
		}
		accountType := a.AccountType
		if accountType == "" {
			accountType = "-"
		}
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.Email,
			accountType,
			strconv.FormatBool(a.Enabled),
			strconv.FormatInt(a.Count, 10),
			expires,
		})
	}
	return t
}

// accountSummary is the JSON shape of a listed account.
type accountSummary struct {
	ID           int64     `json:"id"`
	Account      string    `json:"account"`
	AccountType  string    `json:"account_type,omitempty"`
	Enabled      bool      `json:"enable"`
	Count        int64     `json:"count"`
	TokenExpires time.Time `json:"token_expires,omitzero"`
}

type accountPage struct {
	Total int              `json:"total"`
	Items []accountSummary `json:"items"`
	rows  accountRows
}

func (p accountPage) Table() cli.Table { return p.rows.Table() }

func newAccountPage(list []*accounts.Account, total int) accountPage {
	page := accountPage{Total: total, Items: make([]accountSummary, 0, len(list)), rows: list}
	for _, a := range list {
		page.Items = append(page.Items, accountSummary{
			ID:           a.ID,
			Account:      a.Email,
			AccountType:  a.AccountType,
			Enabled:      a.Enabled,
			Count:        a.Count,
			TokenExpires: a.TokenExpires,
		})
	}
	return page
}

func newAccountsListCmd(root *rootOptions) *cobra.Command {
	var opts accounts.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := root.formatter()
			if err != nil {
				return err
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return cli.NewCommandError("accounts list", err)
			}
			defer a.Close()

			list, total, err := a.store.List(cmd.Context(), opts)
			if err != nil {
				return cli.NewCommandError("accounts list", err)
			}
			return formatter.FormatTo(cmd.OutOrStdout(), newAccountPage(list, total))
		},
	}

	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "number of accounts to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of accounts")
	cmd.Flags().StringVar(&opts.Search, "search", "", "filter by account email substring")
	cmd.Flags().StringVar(&opts.SortBy, "sort-by", "id", "sort column")
	cmd.Flags().BoolVar(&opts.SortDesc, "desc", false, "sort descending")
	return cmd
}

func newAccountsAddCmd(root *rootOptions) *cobra.Command {
	var in accounts.NewAccount
	var refresh bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an account or update an existing one",
		Long: `Register an account. An existing account with the same email is updated
with the non-empty fields.

Example:
  chatbetter2api accounts add --email a@example.com \
    --cookie fe_device_abc=... --cookie fe_refresh_abc=... --refresh`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return cli.NewCommandError("accounts add", err)
			}
			defer a.Close()

			ctx := cmd.Context()
			acct, err := a.store.Create(ctx, in)
			if err != nil {
				return cli.NewCommandError("accounts add", err)
			}
			if refresh {
				if err := a.refresher.Refresh(ctx, acct); err != nil {
					return cli.NewCommandError("accounts add", err)
				}
			}
			a.manager.Sync(ctx, acct)

			fmt.Fprintf(cmd.OutOrStdout(), "Account %d (%s) saved, enabled=%t\n", acct.ID, acct.Email, acct.Enabled)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&in.Token, "token", "", "bearer token")
	cmd.Flags().StringVar(&in.AccessToken, "access-token", "", "access token")
	cmd.Flags().StringVar(&in.AccountType, "type", "", "account type, e.g. paid")
	cmd.Flags().StringToStringVar(&in.SilentCookies, "cookie", nil, "silent refresh cookie name=value (repeatable)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "renew credentials right after saving")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAccountsRefreshCmd(root *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "refresh [id...]",
		Short: "Renew account credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("pass either account ids or --all")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return cli.NewCommandError("accounts refresh", err)
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if all {
				summary, err := a.runner.RefreshAll(ctx, cli.NewLabeledProgress(cmd.ErrOrStderr(), "Refreshing"))
				if err != nil {
					return cli.NewCommandError("accounts refresh", err)
				}
				fmt.Fprintf(out, "Refreshed %d of %d accounts, %d failed\n", summary.Succeeded, summary.Total, summary.Failed)
				return nil
			}

			var failed int
			for _, id := range ids {
				acct, err := a.refresher.RefreshByID(ctx, id)
				if err != nil {
					failed++
					fmt.Fprintf(out, "Account %d: %v\n", id, err)
					continue
				}
				fmt.Fprintf(out, "Account %d: token valid until %s\n", id, acct.TokenExpires.UTC().Format(time.RFC3339))
			}
			if failed > 0 {
				return cli.NewCommandError("accounts refresh", fmt.Errorf("%d of %d refreshes failed", failed, len(ids)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "refresh every account, disabled ones included")
	return cmd
}

func newAccountsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Soft-delete accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return cli.NewCommandError("accounts delete", err)
			}
			defer a.Close()

			ctx := cmd.Context()
			for _, id := range ids {
				acct, err := a.store.Get(ctx, id)
				if err != nil {
					return cli.NewCommandError("accounts delete", err)
				}
				if err := a.store.SoftDelete(ctx, id); err != nil {
					return cli.NewCommandError("accounts delete", err)
				}
				acct.Enabled = false
				a.manager.Sync(ctx, acct)
				fmt.Fprintf(cmd.OutOrStdout(), "Account %d (%s) deleted\n", id, acct.Email)
			}
			return nil
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, cli.NewConfigError("id", fmt.Sprintf("invalid account id %q", arg))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
