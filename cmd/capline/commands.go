package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capline/internal/app"
	"capline/internal/catalog"
	"capline/internal/config"
	"capline/internal/domain"
	"capline/internal/ledger"
	"capline/internal/receipt"
	"capline/internal/repo"
	"capline/internal/rules"
	"capline/internal/server"
	"capline/internal/sim"
)

func simulateCmd() *cobra.Command {
	var difficulty string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Measure clear and failure rates with a heuristic learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			runs := viper.GetInt("simulate-runs")
			if runs <= 0 {
				runs = cfg.Simulate.Runs
			}
			workers := viper.GetInt("simulate-workers")
			if workers <= 0 {
				workers = cfg.Simulate.Workers
			}
			difficulties := domain.Difficulties
			if difficulty != "" {
				d, err := rules.ParseDifficulty(difficulty)
				if err != nil {
					return err
				}
				difficulties = []domain.Difficulty{d}
			}
			runner := sim.Runner{Workers: workers, Logger: engineLogger()}
			var reports []sim.Report
			for _, d := range difficulties {
				rep, err := runner.Balance(cmd.Context(), d, runs)
				if err != nil {
					return err
				}
				reports = append(reports, rep)
			}
			if viper.GetBool("json") {
				return printJSON(reports)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Difficulty", "Runs", "Clear %", "Legal fail %", "Margin fail %", "Difficulty fail %"})
			for _, r := range reports {
				tw.AppendRow(table.Row{r.Difficulty, r.Runs, r.ClearRate, r.LegalFailRate, r.MarginFailRate, r.DifficultyFailRate})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "only this difficulty")
	cmd.Flags().Int("runs", 0, "runs per difficulty (defaults to config simulate.runs)")
	cmd.Flags().Int("workers", 0, "concurrent runs (defaults to config simulate.workers)")
	_ = viper.BindPFlag("simulate-runs", cmd.Flags().Lookup("runs"))
	_ = viper.BindPFlag("simulate-workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func smokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Play one first-option run per difficulty",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := sim.Runner{Logger: engineLogger()}.Smoke(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(rows)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Difficulty", "Team", "Seed", "Missions", "Events", "Ledger rows", "Cleared", "Claim", "XP"})
			for _, r := range rows {
				tw.AppendRow(table.Row{r.Difficulty, r.Team, r.Seed, r.Missions, r.Events, r.LedgerRows, r.Cleared, derefOr(r.ClaimCode, "-"), r.XP})
			}
			tw.Render()
			return nil
		},
	}
}

func teamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List team snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(cat *catalog.Catalog) error {
				teams := cat.Teams()
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Team", "Season", "Cap space", "Dead cap", "Composite", "Sources"})
				for _, t := range teams {
					tw.AppendRow(table.Row{t.ID, t.DisplayName, t.Season, t.CapSpaceM.StringFixed(1), t.DeadCapM.StringFixed(1),
						rules.Composite(t.InitialMetrics), len(cat.TeamCitations(t.ID))})
				}
				tw.Render()
				fmt.Printf("data locked %s\n", cat.LockDate)
				return nil
			})
		},
	}
}

func missionsCmd() *cobra.Command {
	var (
		difficulty string
		backlog    bool
	)
	cmd := &cobra.Command{
		Use:   "missions",
		Short: "List missions, or the plan for a difficulty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(cat *catalog.Catalog) error {
				if backlog {
					items := cat.Backlog()
					if viper.GetBool("json") {
						return printJSON(items)
					}
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Role", "Status", "Title", "Objective"})
					for _, b := range items {
						tw.AppendRow(table.Row{b.ID, b.Role, b.Status, b.Title, b.LearningObjective})
					}
					tw.Render()
					return nil
				}
				missions := cat.Missions()
				if difficulty != "" {
					d, err := rules.ParseDifficulty(difficulty)
					if err != nil {
						return err
					}
					if missions, err = cat.BuildMissionPlan(d); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Role", "Urgency", "Title", "Options"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Role, m.Urgency, m.Title, len(m.Options)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "show the plan for ROOKIE, PRO or LEGEND")
	cmd.Flags().BoolVar(&backlog, "backlog", false, "show backlog missions instead")
	return cmd
}

func ledgerCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "ledger",
		Short: "Browse archived run ledgers",
	}
	l.AddCommand(ledgerListCmd())
	l.AddCommand(ledgerShowCmd())
	return l
}

func ledgerListCmd() *cobra.Command {
	var f repo.RunFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd.Context(), func(ctx context.Context, a *app.Archive) error {
				runs, err := a.Repo.ListRuns(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Run", "Difficulty", "Team", "Cleared", "XP", "Claim", "Archived"})
				for _, r := range runs {
					tw.AppendRow(table.Row{r.RunID, r.Difficulty, r.LearnerTeam, r.Cleared, r.XPAwarded, derefOr(r.ClaimCode, "-"), r.ArchivedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Difficulty, "difficulty", "", "difficulty filter")
	cmd.Flags().StringVar(&f.LearnerTeam, "team", "", "learner team filter")
	cmd.Flags().BoolVar(&f.ClearedOnly, "cleared", false, "only cleared runs")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "max runs")
	return cmd
}

func ledgerShowCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd.Context(), func(ctx context.Context, a *app.Archive) error {
				rows, err := a.Repo.LedgerRows(ctx, args[0])
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("run %s is not archived", args[0])
					}
					return err
				}
				if csvPath != "" {
					if err := writeLedgerFile(csvPath, rows); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				ledger.RenderTable(os.Stdout, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write the ledger CSV to this path")
	return cmd
}

func receiptCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "receipt",
		Short: "Work with completion receipts",
	}
	r.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a completion receipt with CAPLINE_RECEIPT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secrets, err := config.LoadSecrets()
			if err != nil {
				return err
			}
			claims, err := issuerFor(cfg, secrets).Verify(args[0])
			if err != nil {
				if errors.Is(err, receipt.ErrNoSecret) {
					return fmt.Errorf("%w: set CAPLINE_RECEIPT_SECRET", err)
				}
				return err
			}
			if viper.GetBool("json") {
				return printJSON(claims)
			}
			fmt.Printf("receipt OK: run %s (%s, %s) cleared=%t claim=%s checksum=%s\n",
				claims.Subject, claims.Difficulty, claims.Team, claims.Cleared, claims.ClaimCode, claims.ReviewChecksum)
			return nil
		},
	})
	return r
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect capline.yml",
		Long:  "Config holds the defaults: which team and difficulty to play, where to archive finished runs, receipt settings, and server and simulation options. Secrets come only from the environment.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			renderConfig(os.Stdout, cfg)
			return nil
		},
	}
}

func renderConfig(out io.Writer, cfg *config.Config) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Key", "Value"})
	tw.AppendRows([]table.Row{
		{"play.team", cfg.Play.Team},
		{"play.difficulty", cfg.Play.Difficulty},
		{"play.export_dir", cfg.Play.ExportDir},
		{"archive.enabled", cfg.Archive.Enabled},
		{"archive.dialect", cfg.Archive.Dialect},
		{"archive.path", cfg.Archive.Path},
		{"receipts.issuer", cfg.Receipts.Issuer},
		{"receipts.ttl", cfg.Receipts.TTL},
		{"server.addr", cfg.Server.Addr},
		{"server.base_path", cfg.Server.BasePath},
		{"simulate.runs", cfg.Simulate.Runs},
		{"simulate.workers", cfg.Simulate.Workers},
	})
	tw.Render()
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate capline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default capline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secrets, err := config.LoadSecrets()
			if err != nil {
				return err
			}
			addr := viper.GetString("server-addr")
			if addr == "" {
				addr = cfg.Server.Addr
			}
			basePath := viper.GetString("server-base-path")
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var archive *app.Archive
			if cfg.Archive.Enabled {
				if archive, err = app.OpenArchive(ctx, viper.GetString("workspace"), cfg, secrets, log.Default()); err != nil {
					return err
				}
				defer archive.Close()
			}
			iss := issuerFor(cfg, secrets)
			if !iss.Enabled() {
				log.Printf("serve: receipts disabled; set CAPLINE_RECEIPT_SECRET to sign them")
			}
			handler, err := server.New(server.Config{
				Archive:  archive,
				Receipts: iss,
				BasePath: basePath,
				Logger:   log.Default(),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Capline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (defaults to config server.addr)")
	cmd.Flags().String("base-path", "", "API base path (defaults to config server.base_path)")
	_ = viper.BindPFlag("server-addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server-base-path", cmd.Flags().Lookup("base-path"))
	return cmd
}
