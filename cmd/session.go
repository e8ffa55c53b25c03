package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalog-importer/internal/model"
	"github.com/sells-group/catalog-importer/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage feed import sessions",
	Long:  "Create a session from a feed URL, preview its taxonomy, select what to import and run the import.",
}

// -- session create --

var sessionCreateCmd = &cobra.Command{
	Use:   "create <feed-url>",
	Short: "Create a session and build the feed preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("session"); err != nil {
			return err
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Service.Create(ctx, args[0])
		if err != nil {
			if sess != nil {
				fmt.Fprintf(os.Stderr, "session %s failed: %s\n", sess.ID, sess.Error)
			}
			return eris.Wrap(err, "session create")
		}
		fmt.Fprintf(os.Stdout, "session %s ready: %d products, %d categories, %d brands\n",
			sess.ID, sess.Summary.TotalProducts, len(sess.Summary.Categories), len(sess.Summary.Brands))
		return nil
	},
}

// -- session download --

var sessionDownloadCmd = &cobra.Command{
	Use:   "download <session-id>",
	Short: "Download the session's feed to the work directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Service.Download(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session download")
		}
		fmt.Fprintf(os.Stdout, "feed saved to %s\n", sess.FilePath)
		return nil
	},
}

// -- session preview --

var sessionPreviewCmd = &cobra.Command{
	Use:   "preview <session-id>",
	Short: "Print the feed taxonomy as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Service.Preview(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session preview")
		}
		return writeYAML(os.Stdout, summary)
	},
}

// -- session select --

var sessionSelectCmd = &cobra.Command{
	Use:   "select <session-id>",
	Short: "Store the categories, brands or products to import",
	Long:  "Product ids take precedence over category and brand filters. Omitting every filter selects the whole feed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sel := selectionFromFlags(cmd)

		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Service.Select(ctx, args[0], sel)
		if err != nil {
			return eris.Wrap(err, "session select")
		}
		fmt.Fprintf(os.Stdout, "session %s: selection stored (%s)\n", sess.ID, describeSelection(sel))
		return nil
	},
}

// -- session import --

var sessionImportCmd = &cobra.Command{
	Use:   "import <session-id>",
	Short: "Import the selected products into the catalog",
	Long:  "Runs mapping, enrichment, category resolution, image handling and upsert for every selected product. Interrupting the run leaves the session resumable.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		mode := "import"
		if dryRun {
			mode = "session"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{catalog: true, dryRun: dryRun})
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Service.Import(ctx, args[0])
		if sess != nil && sess.Result != nil {
			formatResult(os.Stdout, sess)
		}
		if err != nil {
			return eris.Wrap(err, "session import")
		}
		return nil
	},
}

// -- session show --

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show full details of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Service.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session show")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

// -- session list --

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		sessions, err := env.Service.List(ctx, session.Filter{Status: model.SessionStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "session list")
		}
		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		formatSessionList(os.Stdout, sessions)
		return nil
	},
}

func init() {
	sessionSelectCmd.Flags().StringSlice("category", nil, "source category ids to import (repeatable)")
	sessionSelectCmd.Flags().StringSlice("brand", nil, "source producer ids to import (repeatable)")
	sessionSelectCmd.Flags().StringSlice("product", nil, "source product ids to import; overrides category and brand")

	sessionImportCmd.Flags().Bool("dry-run", false, "write to an in-memory catalog instead of the database")

	sessionListCmd.Flags().String("status", "", "filter by status (parsing, ready, selecting, importing, completed, failed)")
	sessionListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionDownloadCmd)
	sessionCmd.AddCommand(sessionPreviewCmd)
	sessionCmd.AddCommand(sessionSelectCmd)
	sessionCmd.AddCommand(sessionImportCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}

func selectionFromFlags(cmd *cobra.Command) model.Selection {
	cats, _ := cmd.Flags().GetStringSlice("category")
	brands, _ := cmd.Flags().GetStringSlice("brand")
	products, _ := cmd.Flags().GetStringSlice("product")
	return model.Selection{Categories: cats, Brands: brands, ProductIDs: products}
}

func describeSelection(sel model.Selection) string {
	if sel.Empty() {
		return "whole feed"
	}
	var parts []string
	if len(sel.ProductIDs) > 0 {
		return fmt.Sprintf("%d products", len(sel.ProductIDs))
	}
	if len(sel.Categories) > 0 {
		parts = append(parts, fmt.Sprintf("%d categories", len(sel.Categories)))
	}
	if len(sel.Brands) > 0 {
		parts = append(parts, fmt.Sprintf("%d brands", len(sel.Brands)))
	}
	return strings.Join(parts, ", ")
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

// formatResult writes the import counters of a session.
func formatResult(out io.Writer, sess *model.Session) {
	r := sess.Result
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s (%s)\n", sess.ID, sess.Status)
	_, _ = fmt.Fprintf(w, "Scanned:\t%d\n", r.Scanned)
	_, _ = fmt.Fprintf(w, "Selected:\t%d\n", r.Selected)
	_, _ = fmt.Fprintf(w, "Created:\t%d\n", r.Created)
	_, _ = fmt.Fprintf(w, "Updated:\t%d\n", r.Updated)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", r.Failed)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", r.Skipped)
	_ = w.Flush()
	for _, e := range r.Errors {
		_, _ = fmt.Fprintf(out, "  - %s\n", e)
	}
}

// formatSessionList writes a tabular list of sessions to out.
func formatSessionList(out io.Writer, sessions []model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPRODUCTS\tWRITTEN\tFAILED\tCHANGED\tFEED")
	for _, s := range sessions {
		products, written, failed := "-", "-", "-"
		if s.Summary != nil {
			products = fmt.Sprint(s.Summary.TotalProducts)
		}
		if s.Result != nil {
			written = fmt.Sprint(s.Result.Succeeded())
			failed = fmt.Sprint(s.Result.Failed)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Status, products, written, failed, s.UpdatedAt.Format(time.DateTime), s.FeedURL)
	}
	_ = w.Flush()
}
