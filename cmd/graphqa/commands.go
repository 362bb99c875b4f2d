package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fmulab/graphqa/internal/bootstrap"
	"github.com/fmulab/graphqa/pkg/graph"
	"github.com/fmulab/graphqa/pkg/qa"
	"github.com/fmulab/graphqa/pkg/query"
	pgxstore "github.com/fmulab/graphqa/pkg/store/pgx"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		mode      string
		documents []string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the selected documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				if _, err := app.Service.ResolveMode(mode); err != nil {
					return err
				}
				resp := app.Service.GetChatResponse(cmd.Context(), qa.ChatRequest{
					Message:   args[0],
					Documents: graph.CoerceDocumentNames(documents),
					Mode:      mode,
					SessionID: sessionID,
				})

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, resp.Message)
				if len(resp.Sources) > 0 {
					fmt.Fprintln(out, "\nSources:")
					for _, s := range resp.Sources {
						fmt.Fprintf(out, "  - %s\n", s)
					}
				}
				fmt.Fprintf(out, "\nSession: %s\n", resp.SessionID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "retrieval mode (see `graphqa modes`)")
	cmd.Flags().StringSliceVar(&documents, "documents", nil, "restrict retrieval to these document names")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	return cmd
}

func newDocumentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "documents",
		Short: "List the documents available for questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				for _, name := range app.Service.Documents(cmd.Context()) {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newGraphCmd() *cobra.Command {
	var (
		documents  []string
		chunkLimit int
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the graph of the selected documents as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := graph.CoerceDocumentNames(documents)
			if len(names) == 0 {
				return fmt.Errorf("--documents is required")
			}
			return withApp(cmd, func(app *bootstrap.App) error {
				g := app.Service.Graph(cmd.Context(), names, chunkLimit)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(g)
			})
		},
	}

	cmd.Flags().StringSliceVar(&documents, "documents", nil, "document names to include")
	cmd.Flags().IntVar(&chunkLimit, "chunk-limit", 0, "maximum number of chunks per document (0 uses GRAPH_CHUNK_LIMIT)")
	return cmd
}

func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the retrieval modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cliFrom(cmd).cfg
			sel := query.NewSelector(cfg.Retrieval.TopK)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range query.Modes() {
				plan, err := sel.Resolve(string(m))
				if err != nil {
					return err
				}
				marker := ""
				if m == cfg.Retrieval.DefaultMode {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m, marker, plan.Description)
			}
			return w.Flush()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the transcript database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := cliFrom(cmd).cfg.Database
			if db.URL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			if err := pgxstore.Migrate(db.URL, db.MigrationsPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
