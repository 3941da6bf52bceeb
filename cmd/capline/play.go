package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capline/internal/app"
	"capline/internal/catalog"
	"capline/internal/config"
	"capline/internal/domain"
	"capline/internal/engine"
	"capline/internal/ledger"
)

var errQuit = errors.New("run abandoned")

func playCmd() *cobra.Command {
	var (
		seed      int64
		csvPath   string
		archiveOn bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a run interactively",
		Long:  "Play walks you through every mission of a run. Type an option id to decide, h for the front-office hint, q to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			team := viper.GetString("play-team")
			if team == "" {
				team = cfg.Play.Team
			}
			diff := viper.GetString("play-difficulty")
			if diff == "" {
				diff = cfg.Play.Difficulty
			}
			opts := engine.Options{
				LearnerTeamID: strings.ToUpper(team),
				Difficulty:    domain.Difficulty(strings.ToUpper(diff)),
				Logger:        engineLogger(),
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed = &seed
			}
			run, err := engine.NewRun(opts)
			if err != nil {
				return err
			}
			out := io.Writer(os.Stdout)
			if viper.GetBool("json") {
				out = os.Stderr
			}
			final, err := playSession(os.Stdin, out, run)
			if err != nil {
				return err
			}

			if csvPath == "" && cfg.Play.ExportDir != "" {
				csvPath = filepath.Join(viper.GetString("workspace"), cfg.Play.ExportDir, final.RunID+".csv")
			}
			if csvPath != "" {
				if err := writeLedgerFile(csvPath, run.Ledger()); err != nil {
					return err
				}
				fmt.Fprintf(out, "ledger written to %s\n", csvPath)
			}

			secrets, err := config.LoadSecrets()
			if err != nil {
				return err
			}
			var token string
			if iss := issuerFor(cfg, secrets); iss.Enabled() {
				if token, err = iss.Issue(run.Snapshot().Learner.TeamID, final); err != nil {
					return err
				}
				fmt.Fprintf(out, "receipt: %s\n", token)
			}

			if !cmd.Flags().Changed("archive") {
				archiveOn = cfg.Archive.Enabled
			}
			if archiveOn {
				err := withArchive(cmd.Context(), func(ctx context.Context, a *app.Archive) error {
					rec, err := a.Store(ctx, run)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "archived %s\n", rec.RunID)
					return nil
				})
				if err != nil {
					return err
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"result": final, "receipt": token})
			}
			return nil
		},
	}
	cmd.Flags().String("team", "", "learner team id (defaults to config play.team)")
	cmd.Flags().String("difficulty", "", "ROOKIE, PRO or LEGEND (defaults to config play.difficulty)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "run seed (defaults to the clock)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write the ledger CSV to this path")
	cmd.Flags().BoolVar(&archiveOn, "archive", false, "archive the finished run (defaults to config archive.enabled)")
	_ = viper.BindPFlag("play-team", cmd.Flags().Lookup("team"))
	_ = viper.BindPFlag("play-difficulty", cmd.Flags().Lookup("difficulty"))
	return cmd
}

// playSession drives run from line-based input until the run is finalized.
func playSession(in io.Reader, out io.Writer, run *engine.Run) (domain.FinalResult, error) {
	scanner := bufio.NewScanner(in)
	snap := run.Snapshot()
	fmt.Fprintf(out, "Run %s: %s as %s against %s (seed %d)\n",
		snap.RunID, snap.Difficulty, snap.Learner.TeamName, snap.AI.TeamName, snap.Seed)

	for {
		m, ok := run.CurrentMission()
		if !ok {
			break
		}
		printMission(out, run, m)
		for {
			fmt.Fprint(out, "choose option (h=hint, q=quit): ")
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return domain.FinalResult{}, err
				}
				return domain.FinalResult{}, errors.New("input closed before the run finished")
			}
			line := strings.ToUpper(strings.TrimSpace(scanner.Text()))
			switch line {
			case "":
				continue
			case "Q":
				return domain.FinalResult{}, errQuit
			case "H":
				fmt.Fprintln(out, run.Hint().FrontOffice)
				continue
			}
			sub, err := run.SubmitLearnerOption(m.ID, line)
			if errors.Is(err, domain.ErrUnknownOption) {
				fmt.Fprintf(out, "no option %s on this mission\n", line)
				continue
			}
			if err != nil {
				return domain.FinalResult{}, err
			}
			if !sub.Legality.Legal {
				fmt.Fprintf(out, "illegal move: %s\n", strings.Join(sub.Legality.Reasons, ", "))
			}
			break
		}
		choice, err := run.ApplyAIChoice()
		if err != nil {
			return domain.FinalResult{}, err
		}
		fmt.Fprintf(out, "AI chose %s (legal=%t)\n", choice.OptionID, choice.Legal)
		ev, err := run.MaybeInjectEvent()
		if err != nil {
			return domain.FinalResult{}, err
		}
		if ev != nil {
			fmt.Fprintf(out, "EVENT %s: %s\n", ev.Type, ev.Title)
		}
	}

	final, err := run.FinishRun()
	if err != nil {
		return domain.FinalResult{}, err
	}
	printResult(out, final)
	return final, nil
}

func printMission(out io.Writer, run *engine.Run, m domain.Mission) {
	snap := run.Snapshot()
	fmt.Fprintf(out, "\n[%d/%d] %s %s", snap.MissionIndex+1, snap.MissionCount, m.Role, m.Title)
	if snap.InDeadlineWindow && snap.Config.PressureMultiplier != 1 {
		fmt.Fprint(out, " (deadline pressure)")
	}
	fmt.Fprintf(out, "\n%s\n", m.Description)
	fmt.Fprintf(out, "cap space %sM, dead cap %sM, composite %d vs AI %d\n",
		snap.Learner.Finances.CapSpaceM.StringFixed(1), snap.Learner.Finances.DeadCapM.StringFixed(1),
		snap.Learner.Composite, snap.AI.Composite)
	fmt.Fprintf(out, "hint: %s\n", run.Hint().Kid)

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Option", "Label", "Cap", "Dead", "Profile"})
	for _, o := range m.Options {
		tw.AppendRow(table.Row{o.ID, o.Label, o.CapDeltaM.StringFixed(1), o.DeadCapDeltaM.StringFixed(1), strings.Join(catalog.TuningTags(o), ",")})
	}
	tw.Render()
}

func printResult(out io.Writer, res domain.FinalResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Gate", "Result"})
	tw.AppendRow(table.Row{"legal", res.LegalGate})
	tw.AppendRow(table.Row{"difficulty", res.DifficultyGate})
	tw.AppendRow(table.Row{"ai margin", fmt.Sprintf("%t (%d of %d)", res.AIMarginGate, res.Margin, res.MarginRequired)})
	tw.AppendRow(table.Row{"composite", fmt.Sprintf("%d vs AI %d", res.LearnerComposite, res.AIComposite)})
	tw.AppendRow(table.Row{"cleared", res.Cleared})
	tw.AppendRow(table.Row{"xp", res.XPAwarded})
	tw.AppendRow(table.Row{"claim code", derefOr(res.ClaimCode, "-")})
	tw.AppendRow(table.Row{"checksum", res.ReviewChecksum})
	tw.Render()
}

func writeLedgerFile(path string, rows []domain.LedgerRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ledger.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
