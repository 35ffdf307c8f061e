package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/sparql"
	"github.com/c360studio/ontogate/validation"
)

// ----------------------------------------------------------------------------
// ontogate load
// ----------------------------------------------------------------------------

func loadCmd(g *globalFlags) *cobra.Command {
	var (
		files           []string
		clearFirst      bool
		ontology        bool
		continueOnError bool
		force           bool
	)
	cmd := &cobra.Command{
		Use:   "load [files...]",
		Short: "Load RDF files directly into Fuseki",
		Long: `Load Turtle or N-Triples files into the Fuseki dataset without running
the server. With --ontology the configured ontology, validation and data
directories are loaded. The triple count is printed afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(g)
			if err != nil {
				return err
			}
			app := NewApp(cfg, logger)
			defer app.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := app.waitForBackend(ctx); err != nil {
				return fmt.Errorf("fuseki is not reachable at %s: %w", cfg.Fuseki.URL, err)
			}
			if clearFirst {
				if _, err := app.loader.Clear(ctx); err != nil {
					return fmt.Errorf("clear dataset: %w", err)
				}
				fmt.Fprintln(out, "✓ Cleared dataset")
			}

			opts := loader.Options{Validate: true, ContinueOnError: continueOnError, Force: force}
			files = append(files, args...)

			var outcome loader.Outcome
			switch {
			case len(files) > 0:
				outcome, err = app.loader.LoadFiles(ctx, files, opts)
			case ontology:
				outcome = app.loader.LoadOntology(ctx, cfg.Loader.OntologyDirs, opts)
			default:
				if !clearFirst {
					return errors.New("nothing to load: pass files, --files or --ontology")
				}
			}
			printOutcome(out, outcome)
			if err != nil {
				return err
			}

			n, cerr := app.store.Count(ctx)
			if cerr != nil {
				return fmt.Errorf("count triples: %w", cerr)
			}
			fmt.Fprintf(out, "ℹ Dataset %q now holds %d triples\n", cfg.Fuseki.Dataset, n)
			if len(outcome.Failed) > 0 {
				return fmt.Errorf("%d files failed to load", len(outcome.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&files, "files", nil, "Files to load")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "Clear the dataset first")
	cmd.Flags().BoolVar(&ontology, "ontology", false, "Load the configured ontology directories")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "Keep loading after a file fails")
	cmd.Flags().BoolVar(&force, "force", false, "Re-upload files whose content is unchanged")
	return cmd
}

func printOutcome(w io.Writer, outcome loader.Outcome) {
	for _, res := range outcome.Successful {
		if res.Skipped {
			fmt.Fprintf(w, "- %s unchanged, skipped\n", res.Path)
			continue
		}
		fmt.Fprintf(w, "✓ %s (%d triples)\n", res.Path, res.Triples)
	}
	for _, f := range outcome.Failed {
		fmt.Fprintf(w, "✗ %s: %v\n", f.Path, f.Err)
	}
}

// ----------------------------------------------------------------------------
// ontogate query
// ----------------------------------------------------------------------------

func queryCmd(g *globalFlags) *cobra.Command {
	var (
		file       string
		format     string
		timeout    time.Duration
		syntaxOnly bool
	)
	cmd := &cobra.Command{
		Use:   "query [sparql]",
		Short: "Run a SPARQL query against Fuseki",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if syntaxOnly {
				res := sparql.Validate(query)
				if !res.Valid {
					return errors.New(res.Message)
				}
				fmt.Fprintf(out, "✓ Valid %s query\n", res.QueryType)
				return nil
			}

			outFormat, err := sparql.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(g)
			if err != nil {
				return err
			}
			app := NewApp(cfg, logger)
			defer app.Close()

			res, err := app.engine.Execute(cmd.Context(), sparql.Request{Query: query, Timeout: timeout})
			if err != nil {
				return err
			}
			rendered, err := res.Render(outFormat, app.store.Prefixes())
			if err != nil {
				return err
			}
			if s, ok := rendered.(string); ok {
				_, err = io.WriteString(out, s)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rendered)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "sparql_json", "Output format (sparql_json, json, turtle)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Query timeout (0 = policy default)")
	cmd.Flags().BoolVar(&syntaxOnly, "check", false, "Only check the query syntax")
	return cmd
}

func readQuery(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read query: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read query: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("no query given: pass it as an argument or with --file")
	}
}

// ----------------------------------------------------------------------------
// ontogate validate
// ----------------------------------------------------------------------------

func validateCmd(g *globalFlags) *cobra.Command {
	var (
		shapes    []string
		shapesDir string
		format    string
		focusNode string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the dataset against SHACL shapes",
		Long: `Validate the current Fuseki dataset against SHACL shapes and print the
report. Without --shapes the configured shapes directory is used. The
command fails when the data does not conform.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := validation.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(g)
			if err != nil {
				return err
			}
			app := NewApp(cfg, logger)
			defer app.Close()

			for _, s := range shapes {
				if err := app.validator.LoadShapes(s); err != nil {
					return err
				}
			}
			if len(shapes) == 0 {
				dir := shapesDir
				if dir == "" {
					dir = cfg.Validation.ShapesDir
				}
				_, failed := app.validator.LoadShapesDirectory(dir, "")
				for path, err := range failed {
					logger.Warn("Skipping shapes file", "file", path, "error", err)
				}
			}

			var report *validation.Report
			if focusNode != "" {
				report, err = app.validator.ValidateNode(cmd.Context(), focusNode, "")
			} else {
				report, err = app.validator.Validate(cmd.Context())
			}
			if err != nil {
				return err
			}

			if output != "" {
				if err := validation.Export(report, output, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Report written to %s\n", output)
			} else {
				rendered, err := report.Render(f)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rendered)
			}

			if !report.Conforms() {
				return fmt.Errorf("data does not conform: %d violations", report.Summary().ViolationCount)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&shapes, "shapes", nil, "SHACL shapes files")
	cmd.Flags().StringVar(&shapesDir, "shapes-dir", "", "Directory of shapes files (default from config)")
	cmd.Flags().StringVar(&format, "format", "text", "Report format (json, text, markdown, html, turtle)")
	cmd.Flags().StringVar(&focusNode, "focus-node", "", "Only report results for this node")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file")
	return cmd
}

// ----------------------------------------------------------------------------
// ontogate status
// ----------------------------------------------------------------------------

// check is one status probe.
type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func statusCmd(g *globalFlags) *cobra.Command {
	var (
		apiURL      string
		explorerURL string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the running gateway, its backend and the graph explorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(g)
			if err != nil {
				return err
			}
			if apiURL == "" {
				host := cfg.Server.Host
				if host == "" || host == "0.0.0.0" {
					host = "localhost"
				}
				apiURL = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
			}
			p := &prober{
				api:    strings.TrimRight(apiURL, "/"),
				client: &http.Client{Timeout: timeout},
			}

			checks := []check{
				{"API health", p.health},
				{"SPARQL endpoint", p.sparqlFormat},
				{"CORS", p.cors},
				{"Ontology classes", p.owlClasses},
			}
			if explorerURL != "" {
				checks = append(checks, check{"Graph explorer", func(ctx context.Context) (string, error) {
					return p.reachable(ctx, explorerURL)
				}})
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, c := range checks {
				msg, err := c.run(cmd.Context())
				if err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s: %v\n", c.name, err)
					continue
				}
				fmt.Fprintf(out, "✓ %s: %s\n", c.name, msg)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(checks))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Gateway base URL (default from server config)")
	cmd.Flags().StringVar(&explorerURL, "explorer-url", "", "Graph explorer URL to probe")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	return cmd
}
