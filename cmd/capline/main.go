package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capline/internal/app"
	"capline/internal/catalog"
	"capline/internal/config"
	"capline/internal/receipt"
)

var rootCmd = &cobra.Command{
	Use:   "capline",
	Short: "Capline front-office simulator",
	Long: `Capline is a salary-cap front-office simulation.
Core concepts (kid-friendly):
- Run: one play-through. You act as the AGENT, then the LEAGUE_OFFICE, then the OWNER.
- Mission: a decision with a few options. Each option moves money and five scores.
- Cap space: the money room left under the cap. Going below zero makes a move illegal.
- AI rival: another front office that plays the same missions with its own style.
- Gates: to clear a run you must stay legal, hit the difficulty targets, and beat the AI by a margin.
- Ledger: a CSV diary of every decision, plus a summary row with your claim code.
- Archive: finished runs can be exported to SQLite or Postgres. They are records, not saves.`,
	SilenceUsage: true,
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
	viper.SetEnvPrefix("CAPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <workspace>/capline.yml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log engine activity to stderr")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(smokeCmd())
	rootCmd.AddCommand(teamsCmd())
	rootCmd.AddCommand(missionsCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(viper.GetString("workspace"))
}

func engineLogger() *log.Logger {
	if viper.GetBool("verbose") {
		return log.Default()
	}
	return log.New(io.Discard, "", 0)
}

func issuerFor(cfg *config.Config, secrets config.Secrets) receipt.Issuer {
	return receipt.Issuer{
		Secret: secrets.ReceiptSecret,
		Issuer: cfg.Receipts.Issuer,
		TTL:    cfg.Receipts.TTL,
	}
}

func withArchive(ctx context.Context, fn func(context.Context, *app.Archive) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	a, err := app.OpenArchive(ctx, viper.GetString("workspace"), cfg, secrets, engineLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withCatalog(fn func(*catalog.Catalog) error) error {
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	return fn(cat)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
