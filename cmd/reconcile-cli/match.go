package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/matching"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/gemini"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/memory"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/pdf"
)

var (
	ledgerFile  string
	matchFormat string
	userID      string
	assisted    bool
	geminiModel string
	confirm     bool
)

type matchOutput struct {
	View     *reconciliation.View        `json:"view"`
	Rejected []matching.Rejection        `json:"rejected,omitempty"`
	Audit    *reconciliation.AuditRecord `json:"audit,omitempty"`
	Ledger   []ledger.Entry              `json:"ledger,omitempty"`
}

var matchCmd = &cobra.Command{
	Use:   "match [flags] <statement_file>",
	Short: "Run a reconciliation session against a YAML ledger fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger := newLogger()
		defer logger.Sync() //nolint:errcheck

		if ledgerFile == "" {
			return errors.NewValidationError("--ledger is required")
		}
		f, err := os.Open(ledgerFile)
		if err != nil {
			return err
		}
		fixture, entries, err := memory.LoadFixture(f)
		f.Close()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		format, err := resolveFormat(matchFormat, args[0])
		if err != nil {
			return err
		}

		repo := memory.NewLedgerRepository(entries...)
		archiver := memory.NewArchiver()
		opts := []reconciliation.Option{reconciliation.WithExtractor(pdf.NewExtractor(logger))}
		if assisted {
			matcher, err := newMatcher(ctx, logger)
			if err != nil {
				return err
			}
			opts = append(opts, reconciliation.WithStrategy(matcher))
		}
		svc := reconciliation.NewService(
			statement.NewParser(logger),
			ledger.NewService(repo, logger),
			memory.NewSessionStore(),
			archiver,
			memory.NewAuditRepository(),
			logger,
			opts...,
		)

		key := reconciliation.SessionKey{
			OrganizationID: fixture.OrganizationID,
			UserID:         userID,
			AccountID:      fixture.AccountID,
		}
		out := matchOutput{}
		out.View, err = svc.Import(ctx, key, reconciliation.ImportRequest{
			FileName: filepath.Base(args[0]),
			Format:   format,
			Data:     data,
		})
		if err != nil {
			return err
		}

		if assisted {
			result, err := svc.RunAssisted(ctx, key)
			if err != nil {
				return err
			}
			out.View, out.Rejected = result.View, result.Rejected
		}

		if confirm {
			out.Audit, err = svc.Confirm(ctx, key)
			if err != nil {
				return err
			}
			out.Ledger = repo.Entries()
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), out)
		}
		return printSession(cmd.OutOrStdout(), out)
	},
}

func init() {
	matchCmd.Flags().StringVarP(&ledgerFile, "ledger", "l", "", "YAML ledger fixture")
	matchCmd.Flags().StringVarP(&matchFormat, "format", "f", "", "statement format (default: from extension)")
	matchCmd.Flags().StringVar(&userID, "user", "cli", "operator recorded on the audit")
	matchCmd.Flags().BoolVar(&assisted, "assisted", false, "ask Gemini for pairings of what stays pending (needs GEMINI_API_KEY)")
	matchCmd.Flags().StringVar(&geminiModel, "model", gemini.DefaultModel, "Gemini model for --assisted")
	matchCmd.Flags().BoolVar(&confirm, "confirm", false, "commit the matches to the in-memory ledger and print the audit record")
}

func newMatcher(ctx context.Context, logger *zap.Logger) (*gemini.Matcher, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.NewValidationError("GEMINI_API_KEY must be set for --assisted")
	}
	return gemini.NewMatcher(ctx, apiKey, geminiModel, logger)
}

func printSession(out io.Writer, result matchOutput) error {
	w := newTable(out)
	v := result.View
	fmt.Fprintf(w, "Session\t%s\t%s..%s\t\n", v.State, v.DateFilter.Start, v.DateFilter.End)
	for _, warning := range v.Warnings {
		fmt.Fprintf(w, "Warning\t%s\t\t\n", warning)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TRANSACTION\tDATE\tAMOUNT\tDESCRIPTION\tSTATUS")
	for _, t := range v.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Date, t.Amount, t.Description, t.Classification)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ENTRY\tDATE\tAMOUNT\tDESCRIPTION\tSTATUS")
	for _, e := range v.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.EntryID, e.OccurrenceDate(), e.Amount, e.Description, e.Classification)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PAIR\tTRANSACTION\tENTRIES\tSOURCE\t")
	for _, m := range v.Matches {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t\n", m.PairID, m.StatementTransactionID, m.LedgerEntryIDs, m.Source)
	}

	if audit := result.Audit; audit != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Confirmed\t%s\t%d pairs\t%s\t\n", audit.AuditID, len(audit.MatchedPairs), audit.TotalReconciledAmount)
		fmt.Fprintf(w, "Archived\t%s\t\t\t\n", audit.SourceFileReference)
	}
	return w.Flush()
}
