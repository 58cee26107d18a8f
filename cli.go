package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/catalog"
	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
	"github.com/ekaya-inc/opd-explorer/pkg/resolution"
	"github.com/ekaya-inc/opd-explorer/pkg/retrieval"
)

// selectionFlags binds one flag per download stage.
type selectionFlags map[models.Stage]*string

var stageFlagNames = map[models.Stage]string{
	models.StageState:            "state",
	models.StageSource:           "source",
	models.StageTableTypeGeneral: "table",
	models.StageTableTypeSub:     "subtable",
	models.StageAgency:           "agency",
	models.StageYear:             "year",
	models.StageURL:              "url",
	models.StageID:               "id",
	models.StageAgencyFilter:     "agency-filter",
}

func addSelectionFlags(cmd *cobra.Command) selectionFlags {
	f := selectionFlags{}
	for _, st := range models.StageOrder {
		f[st] = cmd.Flags().String(stageFlagNames[st], "", st.Label())
	}
	return f
}

func (f selectionFlags) hints() (defaults.State, error) {
	bulk := map[models.Stage]string{}
	for st, v := range f {
		if *v != "" {
			bulk[st] = *v
		}
	}
	return defaults.NewDownload().ApplyHints(bulk)
}

// resolveFromFlags runs one resolution pass over the current catalog.
func resolveFromFlags(ctx context.Context, a *app, f selectionFlags) (resolution.Outcome, error) {
	hints, err := f.hints()
	if err != nil {
		return resolution.Outcome{}, err
	}
	store, err := a.catalog.Get(ctx)
	if err != nil {
		return resolution.Outcome{}, err
	}
	out, _, err := resolution.Resolve(ctx, a.source, resolution.Request{Catalog: store.All(), Hints: hints})
	if err != nil {
		return resolution.Outcome{}, err
	}
	for _, w := range out.Warnings {
		fmt.Fprintln(os.Stderr, w.Message())
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resolveCmd() *cobra.Command {
	var flags selectionFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a selection and print the stages, or the next choice to make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := resolveFromFlags(ctx, a, flags)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	flags = addSelectionFlags(cmd)
	return cmd
}

func fetchCmd() *cobra.Command {
	var (
		flags   selectionFlags
		outPath string
		preview bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Retrieve a fully resolved dataset as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := resolveFromFlags(ctx, a, flags)
				if err != nil {
					return err
				}
				if !out.Resolved() {
					return fmt.Errorf("selection is incomplete: --%s must be one of: %s",
						stageFlagNames[out.Pending.Stage], strings.Join(out.Pending.Options, ", "))
				}

				res, err := a.pipeline.Retrieve(ctx, retrieval.Request{
					Selection:   *out.Selection,
					PreviewRows: a.cfg.Retrieval.PreviewRows,
					Full:        !preview,
				}, func(p retrieval.Progress) {
					if f, ok := p.Fraction(); ok {
						fmt.Fprintf(os.Stderr, "\rRetrieving: %3.0f%% (%d rows)", f*100, p.Rows)
					}
				})
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return err
				}
				if res.Empty {
					fmt.Fprintln(os.Stderr, res.Message)
					return nil
				}
				if preview || !res.HasPayload() {
					return printJSON(res.Preview)
				}

				if outPath == "" {
					outPath = res.Filename
				}
				if err := os.WriteFile(outPath, res.Payload, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				if res.RowCount != nil {
					fmt.Fprintf(os.Stderr, "Wrote %s to %s\n", retrieval.CountLabel(*res.RowCount), outPath)
				}
				return nil
			})
		},
	}
	flags = addSelectionFlags(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: derived from the selection)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Print the preview rows instead of writing the full CSV")
	return cmd
}

func linkCmd() *cobra.Command {
	var state, source, table string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Print a dataset finder link for the given filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				store, err := a.catalog.Get(ctx)
				if err != nil {
					return err
				}
				link, ok := catalog.FinderLink(a.cfg.ExplorerURL, store.All(), state, source, table)
				if !ok {
					return fmt.Errorf("no datasets match the requested filters")
				}
				fmt.Println(link)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "State")
	cmd.Flags().StringVar(&source, "source", "", "Source")
	cmd.Flags().StringVar(&table, "table", "", "Table type")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the PostgreSQL catalog",
	}
	var from string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the PostgreSQL catalog with the rows of a CSV or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			a := &app{cfg: cfg, logger: logger}
			defer a.Close()

			repo, err := a.catalogRepository(ctx)
			if err != nil {
				return err
			}
			if from == "" {
				from = cfg.Catalog.Location
			}
			rows, err := catalog.NewFileSource(from, nil).Fetch(ctx)
			if err != nil {
				return err
			}
			n, err := repo.ReplaceAll(ctx, rows)
			if err != nil {
				return err
			}
			logger.Info("Catalog imported", zap.Int64("rows", n), zap.String("from", from))
			return nil
		},
	}
	importCmd.Flags().StringVar(&from, "from", "", "CSV or YAML catalog (default: catalog.location)")
	cmd.AddCommand(importCmd)
	return cmd
}

// withApp builds the app for a one-shot command.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
