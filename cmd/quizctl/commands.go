package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/candidatequiz/internal/app"
	"github.com/Lllllllleong/candidatequiz/internal/config"
	"github.com/Lllllllleong/candidatequiz/internal/models"
)

func bind(v *viper.Viper, flag *pflag.Flag, key string) {
	_ = v.BindPFlag(key, flag)
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func addFingerprintFlags(cmd *cobra.Command, fp *models.Fingerprint) {
	cmd.Flags().IntVar(&fp.Year, "year", 0, "election year")
	cmd.Flags().StringVar((*string)(&fp.Type), "type", "", "election type, see 'quizctl types'")
	cmd.Flags().StringVar(&fp.City, "city", "", "city or county")
	cmd.Flags().StringVar(&fp.District, "district", "", "township or electoral district")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("type")
}

func questionsCmd() *cobra.Command {
	var fp models.Fingerprint
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Show the questions of a fingerprint, generating them if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				svc, err := a.RequireQuestionnaire()
				if err != nil {
					return err
				}
				questions, err := svc.EnsureQuestions(ctx, fp)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), models.StartResponse{Questions: questions})
				}
				group, err := a.Store.FindValidOrExpired(ctx, fp.Normalize())
				if err != nil {
					return err
				}
				printQuestions(cmd.OutOrStdout(), questions, group, time.Now())
				return nil
			})
		},
	}
	addFingerprintFlags(cmd, &fp)
	return cmd
}

func refreshCmd() *cobra.Command {
	var fp models.Fingerprint
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Regenerate the questions of a fingerprint unless they are still valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				svc, err := a.RequireQuestionnaire()
				if err != nil {
					return err
				}
				n, err := svc.Refresh(ctx, fp)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "skipped: a pending or valid group already exists")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refreshed: %d questions\n", n)
				return nil
			})
		},
	}
	addFingerprintFlags(cmd, &fp)
	return cmd
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <deed-id>=<value>...",
		Short: "Score a set of answers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := parseAnswers(args)
			if err != nil {
				return err
			}
			req := models.SubmitRequest{Answers: answers}
			if err := req.Validate(); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				scored, err := a.Scoring.Submit(ctx, answers)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), models.SubmitResponse{Candidates: scored})
				}
				printScores(cmd.OutOrStdout(), scored)
				return nil
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete pending groups left by crashed generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var n int
				var err error
				if all {
					n, err = a.Sweeper.SweepAll(ctx)
				} else {
					n, err = a.Sweeper.SweepStale(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d pending groups\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every pending group, not only stale ones")
	return cmd
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the accepted election types",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Type", "Cycle"})
			for _, t := range models.ElectionTypes {
				cycle := "year % 4 == 2"
				if t == models.President || t == models.Legislator {
					cycle = "year % 4 == 0"
				}
				tw.AppendRow(table.Row{t, cycle})
			}
			tw.Render()
			return nil
		},
	}
}

// parseAnswers reads "id=value" pairs.
func parseAnswers(args []string) ([]models.Answer, error) {
	answers := make([]models.Answer, 0, len(args))
	for _, arg := range args {
		id, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not id=value", models.ErrInvalidRequest, arg)
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q has a non-numeric value", models.ErrInvalidRequest, arg)
		}
		answers = append(answers, models.Answer{ID: id, Value: value})
	}
	return answers, nil
}

func printQuestions(w io.Writer, questions []models.Question, group *models.Group, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "ID", "Question"})
	// Group ids are case-sensitive.
	tw.Style().Format.Footer = text.FormatDefault
	for i, q := range questions {
		tw.AppendRow(table.Row{i + 1, q.ID, q.Question})
	}
	if group != nil && group.ExpiredAt != nil {
		label := "expires"
		if group.State(now) == models.GroupExpired {
			label = "expired, refreshing"
		}
		tw.AppendFooter(table.Row{"", group.ID, fmt.Sprintf("%s %s", label, humanize.RelTime(*group.ExpiredAt, now, "ago", "from now"))})
	}
	tw.Render()
}

func printScores(w io.Writer, scored []models.ScoredCandidate) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Name", "Party", "Score", "Deeds", "Picture"})
	for _, c := range scored {
		pic := "-"
		if c.PictureURL != nil {
			pic = *c.PictureURL
		}
		tw.AppendRow(table.Row{c.Name, c.Party, humanize.FormatFloat("#.##", c.Score), len(c.Deeds), pic})
	}
	tw.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
