package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/erpledger/internal/adapter/http/dto"
	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/infrastructure/auth"
	"github.com/iho/erpledger/internal/infrastructure/config"
	"github.com/iho/erpledger/internal/infrastructure/logger"
	"github.com/iho/erpledger/internal/infrastructure/postgres"
)

func newEventCmd(opts *options) *cobra.Command {
	eventCmd := &cobra.Command{
		Use:   "event",
		Short: "Accounting events",
	}

	var (
		file           string
		idempotencyKey string
	)
	postCmd := &cobra.Command{
		Use:   "post",
		Short: "Post an event read from a JSON file (- for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var req dto.PostEventRequest
			if err := json.NewDecoder(r).Decode(&req); err != nil {
				return fmt.Errorf("invalid event JSON: %w", err)
			}
			if err := dto.Validate(&req); err != nil {
				return err
			}

			var headers map[string]string
			if idempotencyKey != "" {
				headers = map[string]string{"Idempotency-Key": idempotencyKey}
			}
			return opts.show(cmd, http.MethodPost, "/api/v1/events", nil, req, headers)
		},
	}
	postCmd.Flags().StringVarP(&file, "file", "f", "-", "Event JSON file")
	postCmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an event and its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd, http.MethodGet, "/api/v1/events/"+url.PathEscape(args[0]), nil, nil, nil)
		},
	}

	var (
		status        string
		limit, offset int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := pageQuery(limit, offset)
			if status != "" {
				q.Set("status", status)
			}
			return opts.show(cmd, http.MethodGet, "/api/v1/events", q, nil, nil)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status (POSTED, REVERSED, ERROR)")
	addPageFlags(listCmd, &limit, &offset)

	eventCmd.AddCommand(postCmd, getCmd, listCmd)
	return eventCmd
}

func newJournalCmd(opts *options) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Journal entries",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.call(http.MethodGet, "/api/v1/journals", pageQuery(limit, offset), nil, nil)
			if err != nil {
				return err
			}

			var entries []dto.JournalEntryResponse
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-18s %-10s %-18s %-9s %14s  %s\n", "JOURNAL NO", "SOURCE", "SOURCE ID", "STATUS", "AMOUNT", "DESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(out, "%-18s %-10s %-18s %-9s %14s  %s\n",
					e.JournalNo, e.SourceType, truncate(e.SourceID, 18), e.Status,
					e.TotalDebit.StringFixed(2), truncate(e.Description, 40))
			}
			return nil
		},
	}
	addPageFlags(listCmd, &limit, &offset)

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a journal entry with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd, http.MethodGet, "/api/v1/journals/"+url.PathEscape(args[0]), nil, nil, nil)
		},
	}

	var reason string
	reverseCmd := &cobra.Command{
		Use:   "reverse <id>",
		Short: "Reverse a posted journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.ReverseJournalRequest{Reason: reason}
			if err := dto.Validate(&req); err != nil {
				return err
			}
			return opts.show(cmd, http.MethodPost, "/api/v1/journals/"+url.PathEscape(args[0])+"/reverse", nil, req, nil)
		},
	}
	reverseCmd.Flags().StringVar(&reason, "reason", "", "Reason for the reversal")

	journalCmd.AddCommand(listCmd, getCmd, reverseCmd)
	return journalCmd
}

func newStockCmd(opts *options) *cobra.Command {
	stockCmd := &cobra.Command{
		Use:   "stock",
		Short: "Stock ledger",
	}

	var (
		material, project, po, reason string
		qty, price                    string
	)
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, domain.NewValidationError(name, "must be a decimal number")
		}
		return d, nil
	}

	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Record a goods receipt",
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := parse("quantity", qty)
			if err != nil {
				return err
			}
			unitPrice, err := parse("unit_price", price)
			if err != nil {
				return err
			}
			req := dto.ReceiveStockRequest{
				MaterialID:      material,
				Quantity:        quantity,
				UnitPrice:       unitPrice,
				PurchaseOrderID: po,
				ProjectID:       project,
				Reason:          reason,
			}
			if err := dto.Validate(&req); err != nil {
				return err
			}
			return opts.show(cmd, http.MethodPost, "/api/v1/stocks/receive", nil, req, nil)
		},
	}
	receiveCmd.Flags().StringVar(&price, "price", "", "Unit price")
	receiveCmd.Flags().StringVar(&po, "po", "", "Purchase order id")

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue material to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := parse("quantity", qty)
			if err != nil {
				return err
			}
			req := dto.IssueStockRequest{MaterialID: material, ProjectID: project, Quantity: quantity, Reason: reason}
			if err := dto.Validate(&req); err != nil {
				return err
			}
			return opts.show(cmd, http.MethodPost, "/api/v1/stocks/issue", nil, req, nil)
		},
	}

	adjustCmd := &cobra.Command{
		Use:   "adjust",
		Short: "Apply a signed count correction",
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := parse("quantity", qty)
			if err != nil {
				return err
			}
			req := dto.AdjustStockRequest{MaterialID: material, Quantity: quantity, Reason: reason}
			if err := dto.Validate(&req); err != nil {
				return err
			}
			return opts.show(cmd, http.MethodPost, "/api/v1/stocks/adjust", nil, req, nil)
		},
	}

	for _, c := range []*cobra.Command{receiveCmd, issueCmd, adjustCmd} {
		c.Flags().StringVar(&material, "material", "", "Material id")
		c.Flags().StringVar(&qty, "qty", "", "Quantity")
		c.Flags().StringVar(&reason, "reason", "", "Reason")
	}
	for _, c := range []*cobra.Command{receiveCmd, issueCmd} {
		c.Flags().StringVar(&project, "project", "", "Project id")
	}

	getCmd := &cobra.Command{
		Use:   "get <material>",
		Short: "Show on-hand quantity and average cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd, http.MethodGet, "/api/v1/stocks/"+url.PathEscape(args[0]), nil, nil, nil)
		},
	}

	stockCmd.AddCommand(receiveCmd, issueCmd, adjustCmd, getCmd)
	return stockCmd
}

func newOpenItemCmd(opts *options, use, resource, party string) *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   use,
		Short: "Open " + resource,
	}

	var partyID string
	outstandingCmd := &cobra.Command{
		Use:   "outstanding",
		Short: "Total outstanding " + resource,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if partyID != "" {
				q.Set(party+"_id", partyID)
			}
			return opts.show(cmd, http.MethodGet, "/api/v1/"+resource+"/outstanding", q, nil, nil)
		},
	}
	outstandingCmd.Flags().StringVar(&partyID, party, "", "Restrict to one "+party)

	getCmd := &cobra.Command{
		Use:   "get <source-id>",
		Short: "Show the open item of a source document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd, http.MethodGet, "/api/v1/"+resource+"/"+url.PathEscape(args[0]), nil, nil, nil)
		},
	}

	itemCmd.AddCommand(outstandingCmd, getCmd)
	return itemCmd
}

func newLedgerCmd(opts *options) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := opts.call(http.MethodGet, "/api/v1/ledger/consistency", nil, nil, nil)
			if err != nil {
				var apiErr *apiError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
					return fmt.Errorf("consistency check FAILED: %s", apiErr.Body)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Consistency check PASSED")
			return nil
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare AR/AP control accounts with open items",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.call(http.MethodGet, "/api/v1/ledger/reconciliation", nil, nil, nil)
			var apiErr *apiError
			if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict) {
				return err
			}

			var report dto.ReconciliationResponse
			if err := json.Unmarshal(data, &report); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, r := range report.Results {
				mark := "OK"
				if !r.IsReconciled {
					mark = "DIFF"
				}
				fmt.Fprintf(out, "%-10s %s ledger=%s open_items=%s difference=%s %s\n",
					r.Kind, r.AccountCode, r.LedgerBalance.StringFixed(2), r.OpenItems.StringFixed(2), r.Difference.StringFixed(2), mark)
			}
			if !report.Reconciled {
				return errors.New("ledger is not reconciled")
			}
			return nil
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance [account-code]",
		Short: "Show the posted balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.call(http.MethodGet, "/api/v1/accounts/"+url.PathEscape(args[0])+"/balance", nil, nil, nil)
			if err != nil {
				return err
			}

			var b dto.AccountBalanceResponse
			if err := json.Unmarshal(data, &b); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n  debits:  %s\n  credits: %s\n  balance: %s\n",
				b.Account.Code, b.Account.Name, b.Account.Type,
				b.Debits.StringFixed(2), b.Credits.StringFixed(2), b.Balance.StringFixed(2))
			return nil
		},
	}

	ledgerCmd.AddCommand(consistencyCmd, reconcileCmd, balanceCmd)
	return ledgerCmd
}

// newTokenCmd signs an access token locally with JWT_SECRET.
func newTokenCmd() *cobra.Command {
	var (
		req    dto.TokenRequest
		secret string
		ttl    time.Duration
	)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("a signing secret is required (--secret or JWT_SECRET)")
			}
			if err := dto.Validate(&req); err != nil {
				return err
			}

			token, err := auth.NewJWTManager(secret, ttl).Generate(&domain.User{
				ID:     req.UserID,
				Email:  req.Email,
				Role:   domain.Role(req.Role),
				Active: true,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), dto.TokenResponse{
				Token:     token,
				ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
			})
		},
	}

	tokenCmd.Flags().StringVar(&req.UserID, "user", "", "User id")
	tokenCmd.Flags().StringVar(&req.Email, "email", "", "User email")
	tokenCmd.Flags().StringVar(&req.Role, "role", string(domain.RoleViewer), "Role (admin, operator, viewer)")
	tokenCmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return tokenCmd
}

// newMigrateCmd runs schema migrations against DATABASE_URL.
func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}

	migrator := func() (*postgres.Migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		log := logger.New(logger.Config{Level: cfg.LogLevel, Format: logger.FormatConsole, Service: "erpledger-cli", Out: os.Stderr})
		return postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log), nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Up()
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Down()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func addPageFlags(cmd *cobra.Command, limit, offset *int) {
	cmd.Flags().IntVar(limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(offset, "offset", 0, "Page offset")
}
