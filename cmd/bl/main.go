package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"briefline/internal/config"
	"briefline/internal/db"
	"briefline/internal/domain"
	"briefline/internal/engine"
	"briefline/internal/export"
	"briefline/internal/migrate"
	"briefline/internal/repo"
	"briefline/internal/server"
	"briefline/internal/synthmetrics"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Briefline CLI",
	Long: `Briefline tracks consulting missions and moves their deliverables
through a review pipeline before export.

- Workspace: the .briefline directory holding the database; briefline.yml
  next to it tunes the review pipeline.
- Mission: a client engagement with a progress percentage and a staffing
  plan (roles come from the catalog in briefline.yml).
- Deliverable: a report, deck, analysis, or summary attached to a mission.
- Review pipeline: draft -> fact_checked -> enriched -> published. Fact
  checking scores figures, dates, names, and sources against a confidence
  threshold; enrichment attaches visual assets; publishing freezes content.
- Export: published deliverables render as text, markdown, paginated
  document, or a slide deck.
- Event log: diary of changes, view with 'bl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BRIEFLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(deliverableCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Manage missions"}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionProgressCmd())
	m.AddCommand(missionStatusCmd())
	m.AddCommand(missionArchiveCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var id, title, client string
	var domains, roles []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" || client == "" {
				return fmt.Errorf("--title and --client required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, engine.MissionCreateOptions{
					ID:      id,
					Title:   title,
					Client:  client,
					Domains: domains,
					Roles:   roles,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "mission id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringSliceVar(&domains, "domain", nil, "domain tag (repeatable)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "staffed role (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status, domainTag string
	var includeArchived, all bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters := repo.MissionFilters{
					Status:          status,
					Domain:          domainTag,
					IncludeArchived: includeArchived,
					Limit:           limit,
				}
				var missions []domain.Mission
				if all {
					for m, err := range e.Missions(ctx, filters) {
						if err != nil {
							return err
						}
						missions = append(missions, m)
					}
				} else {
					items, err := e.Repo.ListMissions(ctx, filters)
					if err != nil {
						return err
					}
					missions = items
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Client", "Status", "Progress"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Client, m.Status, fmt.Sprintf("%d%%", m.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (planned, in_progress, completed)")
	cmd.Flags().StringVar(&domainTag, "domain", "", "domain tag filter")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived missions")
	cmd.Flags().BoolVar(&all, "all", false, "walk every page instead of the first")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				m, err := r.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <mission-id> <percent>",
		Short: "Update mission progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("progress must be an integer: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateProgress(ctx, args[0], progress, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <mission-id> <status>",
		Short: "Set mission status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SetMissionStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <mission-id>",
		Short: "Archive a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ArchiveMission(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <mission-id>",
		Short: "Mission status summary",
		Long:  "The scoreboard for a mission: state, progress, and deliverable counts per review state.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				m, err := r.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				counts, err := r.CountDeliverablesByState(ctx, m.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"mission_id":         m.ID,
					"status":             m.Status,
					"progress":           m.Progress,
					"deliverable_counts": counts,
				})
			})
		},
	}
	return cmd
}

func deliverableCmd() *cobra.Command {
	d := &cobra.Command{Use: "deliverable", Short: "Manage deliverables"}
	d.AddCommand(deliverableAttachCmd())
	d.AddCommand(deliverableListCmd())
	d.AddCommand(deliverableShowCmd())
	d.AddCommand(deliverableExportCmd())
	return d
}

func deliverableAttachCmd() *cobra.Command {
	var missionID, title, dtype, content, contentFile string
	var formats []string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach deliverable to a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if missionID == "" || title == "" {
				return fmt.Errorf("--mission and --title required")
			}
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return err
				}
				content = string(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AttachDeliverable(ctx, engine.DeliverableAttachOptions{
					MissionID: missionID,
					Title:     title,
					Type:      dtype,
					Content:   content,
					Formats:   formats,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&title, "title", "", "deliverable title")
	cmd.Flags().StringVar(&dtype, "type", "", "deliverable type (report, deck, analysis, summary)")
	cmd.Flags().StringVar(&content, "content", "", "inline content")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read content from file")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "allowed export format (repeatable)")
	_ = cmd.MarkFlagRequired("mission")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func deliverableListCmd() *cobra.Command {
	var missionID, reviewState string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deliverables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if missionID == "" {
				return fmt.Errorf("--mission required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListDeliverables(ctx, repo.DeliverableFilters{
					MissionID:   missionID,
					ReviewState: reviewState,
					Limit:       limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Review State"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Title, d.Type, d.ReviewState})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&reviewState, "state", "", "review state filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	_ = cmd.MarkFlagRequired("mission")
	return cmd
}

func deliverableShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <deliverable-id>",
		Short: "Show a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				d, err := r.GetDeliverable(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func deliverableExportCmd() *cobra.Command {
	var format, outPath string
	cmd := &cobra.Command{
		Use:   "export <deliverable-id>",
		Short: "Export a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ExportDeliverable(ctx, args[0], format, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if outPath == "" {
					_, werr := os.Stdout.Write(res.Data)
					return werr
				}
				if filepath.Ext(outPath) == "" {
					outPath += res.Format.Extension
				}
				if err := os.WriteFile(outPath, res.Data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %d bytes to %s (%s)\n", len(res.Data), outPath, res.Format.MIME)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", fmt.Sprintf("export format (%s)", strings.Join(export.Names(), ", ")))
	_ = cmd.MarkFlagRequired("format")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (stdout when empty)")
	return cmd
}

func reviewCmd() *cobra.Command {
	r := &cobra.Command{Use: "review", Short: "Review pipeline"}
	r.AddCommand(reviewFactCheckCmd())
	r.AddCommand(reviewEnrichCmd())
	r.AddCommand(reviewPublishCmd())
	r.AddCommand(reviewListCmd())
	return r
}

func reviewFactCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fact-check <deliverable-id>",
		Short: "Run fact check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RunFactCheck(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				outcome := "passed"
				if !res.Passed {
					outcome = "needs_revision"
				}
				fmt.Printf("Outcome: %s\n", outcome)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Confidence"})
				for _, cat := range domain.FactCategories {
					tw.AppendRow(table.Row{cat, fmt.Sprintf("%.3f", res.Confidences[cat])})
				}
				tw.Render()
				if len(res.Failed) > 0 {
					fmt.Printf("Below threshold: %s\n", strings.Join(res.Failed, ", "))
				}
				return nil
			})
		},
	}
	return cmd
}

func reviewEnrichCmd() *cobra.Command {
	var kinds []string
	var style string
	cmd := &cobra.Command{
		Use:   "enrich <deliverable-id>",
		Short: "Apply visual enrichment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(kinds) == 0 {
				return fmt.Errorf("--kind required (chart, infographic, diagram, timeline)")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RunVisualEnrichment(ctx, args[0], engine.EnrichmentOptions{
					Kinds:   kinds,
					Style:   style,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "enrichment kind (repeatable)")
	cmd.Flags().StringVar(&style, "style", "", "visual style (professional, modern, minimalist, corporate)")
	return cmd
}

func reviewPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <deliverable-id>",
		Short: "Publish a deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Publish(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func reviewListCmd() *cobra.Command {
	var stage string
	var limit int
	cmd := &cobra.Command{
		Use:   "list <deliverable-id>",
		Short: "List review records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListReviewRecords(ctx, repo.ReviewFilters{
					DeliverableID: args[0],
					Stage:         stage,
					Limit:         limit,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage filter (fact_check, enrichment)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: mission changes, reviews, exports.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var missionID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, missionID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&missionID, "mission", "", "mission filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rawKey, key, err := repo.NewAPIKey(actorID, name, time.Now().UTC().Format(time.RFC3339))
				if err != nil {
					return err
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key created (shown once):\n%s\n", rawKey)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func dashboardCmd() *cobra.Command {
	var samples int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Synthetic dashboard metrics",
		Long:  "Fabricated metric series for demo dashboards. Every series carries a synthetic flag.",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := synthmetrics.New(0)
			series := gen.Dashboard(samples, 0)
			if viper.GetBool("json") {
				return printJSON(series)
			}
			for _, s := range series {
				fmt.Printf("%s (%s, synthetic)\n", s.Name, s.Unit)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Timestamp", "Value"})
				for _, p := range s.Samples {
					tw.AppendRow(table.Row{p.TS, p.Value})
				}
				tw.Render()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 12, "samples per series")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default briefline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("BRIEFLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				fmt.Println("BRIEFLINE_JWT_SECRET not set; requests without credentials run as local-user")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Briefline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
