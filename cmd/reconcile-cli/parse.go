package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/pdf"
)

var parseFormat string

var parseCmd = &cobra.Command{
	Use:   "parse [flags] <statement_file>",
	Short: "Parse a statement and print its normalized transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync() //nolint:errcheck

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		format, err := resolveFormat(parseFormat, args[0])
		if err != nil {
			return err
		}

		parser := statement.NewParser(logger)
		if format == statement.FormatPDF {
			text, err := pdf.NewExtractor(logger).Extract(data)
			if err != nil {
				return err
			}
			format, data = statement.FormatExtracted, []byte(text)
		}
		txns, err := parser.Parse(format, data)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), txns)
		}
		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tDESCRIPTION")
		for _, t := range txns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Date, t.Amount, t.Description)
		}
		start, end := statement.Period(txns)
		fmt.Fprintf(w, "\t%s..%s\t%d transactions\t\n", start, end, len(txns))
		return w.Flush()
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "", "statement format: ofx, csv, extracted or pdf (default: from extension)")
}

// resolveFormat falls back to the file extension when no format is given
func resolveFormat(flag, path string) (statement.Format, error) {
	if flag != "" {
		f := statement.Format(strings.ToLower(flag))
		if !f.Valid() {
			return "", errors.NewValidationError("unsupported statement format: " + flag)
		}
		return f, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return statement.FormatMarkup, nil
	case ".csv", ".txt":
		return statement.FormatDelimited, nil
	case ".pdf":
		return statement.FormatPDF, nil
	}
	return "", errors.NewValidationError("cannot infer the format of " + path + "; pass --format")
}
