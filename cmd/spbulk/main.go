package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/spbulk/internal/config"
	"github.com/JonMunkholm/spbulk/internal/core"
	"github.com/JonMunkholm/spbulk/internal/history"
	"github.com/JonMunkholm/spbulk/internal/logging"
	"github.com/JonMunkholm/spbulk/internal/sharepoint"
)

// globals are the persistent flags shared by every command.
type globals struct {
	site    string
	json    bool
	verbose bool
}

func main() {
	// A .env file fills in variables the shell did not set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "spbulk",
		Short:         "Bulk upload spreadsheets into SharePoint lists",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "info"
			if g.verbose {
				level = "debug"
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), level, "text"))
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.site, "site", "", "SharePoint site URL (overrides SHAREPOINT_SITE_URL)")
	rootCmd.PersistentFlags().BoolVar(&g.json, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log workflow progress")

	rootCmd.AddCommand(
		newInspectCmd(g),
		newValidateCmd(g),
		newSubmitCmd(g),
		newAppendCmd(g),
		newRunsCmd(g),
	)
	return rootCmd
}

func newInspectCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show the headers, row count and suggested column types of a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readSheetFile(args[0])
			if err != nil {
				return err
			}
			types := core.InferColumnTypes(s.Headers, s.Rows)

			out := cmd.OutOrStdout()
			if g.json {
				return writeJSON(out, map[string]any{
					"headers":  s.Headers,
					"types":    types,
					"rowCount": len(s.Rows),
				})
			}

			fmt.Fprintf(out, "%s: %d rows\n\n", args[0], len(s.Rows))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tCOLUMN\tTYPE\tFIELD NAME")
			for i, h := range s.Headers {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, h, types[i], core.ToRemoteFieldName(h))
			}
			return tw.Flush()
		},
	}
}

func newValidateCmd(g *globals) *cobra.Command {
	var uniqueID string
	var typeFlags []string

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a spreadsheet against its column types without contacting SharePoint",
		Long: `Validate headers and every cell against the column types.

Types are inferred from the data; override them with --type COLUMN=TYPE,
where COLUMN is a header or a zero-based index and TYPE is one of
text, multiline, number, currency or datetime.

Example: spbulk validate orders.xlsx --unique-id "Order ID" --type Amount=currency`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readSheetFile(args[0])
			if err != nil {
				return err
			}
			types, err := resolveTypes(s, typeFlags)
			if err != nil {
				return core.ConfigurationFailure(err)
			}
			id, _ := columnIndex(s, uniqueID)

			issues, err := core.ValidateSheet(s.Clone(), types, id)
			if err != nil {
				return core.ConfigurationFailure(err)
			}

			out := cmd.OutOrStdout()
			if g.json {
				if err := writeJSON(out, map[string]any{"valid": len(issues) == 0, "issues": issues}); err != nil {
					return err
				}
			} else if len(issues) == 0 {
				fmt.Fprintf(out, "%s: %d rows valid\n", args[0], len(s.Rows))
			} else {
				fmt.Fprintln(out, core.FormatIssues(issues, 0))
			}

			if len(issues) > 0 {
				return core.ValidationFailure(issues)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&uniqueID, "unique-id", "", "Unique-id column (header or index)")
	cmd.Flags().StringArrayVar(&typeFlags, "type", nil, "Column type override COLUMN=TYPE (repeatable)")
	_ = cmd.MarkFlagRequired("unique-id")
	return cmd
}

func newSubmitCmd(g *globals) *cobra.Command {
	var listName, uniqueID string
	var typeFlags, attachFlags []string
	var library bool

	cmd := &cobra.Command{
		Use:   "submit [file]",
		Short: "Create a SharePoint list from a spreadsheet and add one item per row",
		Long: `Validate the spreadsheet, create the list and its fields, optionally
create a document library with one document set per record, then add
every row as a list item.

Attachments are given as --attach ID=PATH, where ID is the record's
unique-id value.

Example: spbulk submit orders.xlsx --list Orders --unique-id "Order ID" --library --attach 1001=po-1001.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readSheetFile(args[0])
			if err != nil {
				return core.ParseFailure(err)
			}
			types, err := resolveTypes(s, typeFlags)
			if err != nil {
				return core.ConfigurationFailure(err)
			}
			attachments, err := readAttachments(attachFlags)
			if err != nil {
				return err
			}
			id, _ := columnIndex(s, uniqueID)

			env, err := openEnv(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer env.close()

			in := core.NewWorkflowInput(s, types, id, listName, library, attachments)
			in.FileName = args[0]
			in.Progress = progressPrinter(cmd.ErrOrStderr(), g.verbose)

			return report(cmd.OutOrStdout(), g, env.workflow.Submit(cmd.Context(), in))
		},
	}

	cmd.Flags().StringVar(&listName, "list", "", "Name of the list to create")
	cmd.Flags().StringVar(&uniqueID, "unique-id", "", "Unique-id column (header or index)")
	cmd.Flags().StringArrayVar(&typeFlags, "type", nil, "Column type override COLUMN=TYPE (repeatable)")
	cmd.Flags().BoolVar(&library, "library", false, "Also create a document library with one document set per record")
	cmd.Flags().StringArrayVar(&attachFlags, "attach", nil, "Document set file ID=PATH (repeatable)")
	_ = cmd.MarkFlagRequired("list")
	_ = cmd.MarkFlagRequired("unique-id")
	return cmd
}

func newAppendCmd(g *globals) *cobra.Command {
	var listName string

	cmd := &cobra.Command{
		Use:   "append [file]",
		Short: "Write a spreadsheet into an existing list",
		Long: `Add every row to an existing list. Headers must match the list's
field titles. Rows with an ID column update that item instead.

Example: spbulk append more-orders.csv --list Orders`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readSheetFile(args[0])
			if err != nil {
				return core.ParseFailure(err)
			}

			env, err := openEnv(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer env.close()

			return report(cmd.OutOrStdout(), g, env.workflow.AppendToList(cmd.Context(), core.AppendInput{
				FileName: args[0],
				Sheet:    s,
				ListName: listName,
				Progress: progressPrinter(cmd.ErrOrStderr(), g.verbose),
			}))
		},
	}

	cmd.Flags().StringVar(&listName, "list", "", "Name of the existing list")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func newRunsCmd(g *globals) *cobra.Command {
	var f history.Filter
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded workflow runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer env.close()
			if env.store == nil {
				return errors.New("run history is disabled: set DATABASE_URL")
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := env.store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return report(out, g, *run)
			}

			if failedOnly {
				no := false
				f.Success = &no
			}
			page, err := env.store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if g.json {
				return writeJSON(out, page)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tLIST\tSTARTED\tRESULT\tITEMS")
			for _, r := range page.Runs {
				result := "ok"
				if !r.Success {
					result = string(r.Kind) + " failure"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\n",
					r.RunID, r.ListName, r.StartedAt.Local().Format("2006-01-02 15:04"), result, r.ItemsSubmitted, r.TotalRows)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d runs\n", len(page.Runs), page.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.ListName, "list", "", "Only runs for this list")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only failed runs")
	cmd.Flags().IntVar(&f.Limit, "limit", history.DefaultLimit, "Maximum runs to show")
	return cmd
}

// env holds what the SharePoint commands need.
type env struct {
	workflow *core.Workflow
	store    *history.Store
	pool     *pgxpool.Pool
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// openEnv loads configuration and builds the SharePoint client, the
// workflow and, when DATABASE_URL is set, the run history.
func openEnv(ctx context.Context, g *globals) (*env, error) {
	cfg, err := config.LoadFrom(config.Overlay(os.LookupEnv, map[string]string{
		"SHAREPOINT_SITE_URL": g.site,
	}))
	if err != nil {
		return nil, err
	}

	client, err := sharepoint.New(sharepoint.Options{
		SiteURL:      cfg.SharePoint.SiteURL,
		AccessToken:  cfg.SharePoint.AccessToken,
		Timeout:      cfg.SharePoint.Timeout,
		RegistryList: cfg.SharePoint.RegistryList,
	})
	if err != nil {
		return nil, err
	}

	e := &env{}
	deps := core.Deps{
		Digest:    client,
		Lists:     client,
		Libraries: client,
		Items:     client,
		Fields:    client,
		Registry:  client,
	}

	if cfg.Database.Enabled() {
		pool, err := history.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		e.pool = pool
		e.store = history.New(pool)
		if err := e.store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		deps.Recorder = e.store
	}

	e.workflow = core.NewWorkflow(deps)
	return e, nil
}

func progressPrinter(w io.Writer, verbose bool) core.ProgressFunc {
	return func(p core.Progress) {
		if p.Total == 0 {
			fmt.Fprintln(w, p.Phase.Status())
			return
		}
		if verbose || p.Current == p.Total {
			fmt.Fprintf(w, "%s %d/%d (%d%%)\n", p.Phase, p.Current, p.Total, p.Percent())
		}
	}
}

// report prints an outcome and turns a failed one into an error.
func report(w io.Writer, g *globals, out core.Outcome) error {
	if g.json {
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		printOutcome(w, out)
	}
	if out.Success {
		return nil
	}
	if out.Err != nil {
		return out.Err
	}
	return errors.New(out.Message)
}

func printOutcome(w io.Writer, out core.Outcome) {
	status := "done"
	if !out.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "Run %s: %s %s\n", out.RunID, out.ListName, status)
	fmt.Fprintf(w, "  %d of %d rows submitted", out.ItemsSubmitted, out.TotalRows)
	if out.DocumentSets > 0 {
		fmt.Fprintf(w, ", %d document sets", out.DocumentSets)
	}
	fmt.Fprintln(w)
	if out.Message != "" {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(out.Message, "\n", "\n  "))
	}
	for _, fr := range out.FailedRows {
		fmt.Fprintf(w, "  row %d (%s): %s\n", fr.Row, fr.UniqueID, fr.Reason)
	}
	for _, warning := range out.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
