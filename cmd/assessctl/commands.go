package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sengol/internal/adapters/memory"
	"sengol/internal/config"
	"sengol/internal/domain"
	"sengol/internal/policy"
	"sengol/internal/scoring"
	"sengol/internal/services/evaluation"
	"sengol/internal/snapshot"
)

// cliAccount scopes everything the CLI loads into its in-memory store.
const cliAccount = "local"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ASSESSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "assessctl",
		Short:         "Score assessments and evaluate compliance policies offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newScoreCmd(v), newValidateCmd(v), newEvaluateCmd(v))
	return root
}

func newScoreCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute risk, compliance and composite scores from questionnaire files",
		RunE: func(cmd *cobra.Command, args []string) error {
			qPath, rPath := v.GetString("score.questions"), v.GetString("score.responses")
			if rPath == "" {
				return errors.New("please provide --responses")
			}
			var questions []domain.Question
			var issues []*scoring.DataError
			if qPath != "" {
				data, err := os.ReadFile(qPath)
				if err != nil {
					return err
				}
				qs, qIssues, err := scoring.DecodeQuestions(data)
				if err != nil {
					return err
				}
				questions, issues = qs, qIssues
			}
			data, err := os.ReadFile(rPath)
			if err != nil {
				return err
			}
			responses, rIssues, err := scoring.DecodeResponses(data)
			if err != nil {
				return err
			}
			for _, is := range append(issues, rIssues...) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", is)
			}
			return printJSON(cmd.OutOrStdout(), scoring.Assess(questions, responses))
		},
	}
	cmd.Flags().String("questions", "", "JSON file with the question catalog")
	cmd.Flags().String("responses", "", "JSON file with responses (list or object keyed by question id)")
	_ = v.BindPFlag("score.questions", cmd.Flags().Lookup("questions"))
	_ = v.BindPFlag("score.responses", cmd.Flags().Lookup("responses"))
	return cmd
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a policy file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("validate.policies")
			if path == "" {
				return errors.New("please provide --policies")
			}
			defs, err := policy.LoadFile(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d policies valid\n", len(defs))
			return nil
		},
	}
	cmd.Flags().String("policies", "", "YAML or JSON policy file")
	_ = v.BindPFlag("validate.policies", cmd.Flags().Lookup("policies"))
	return cmd
}

func newEvaluateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a policy file against an attribute snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			polPath, snapPath := v.GetString("evaluate.policies"), v.GetString("evaluate.snapshot")
			if polPath == "" || snapPath == "" {
				return errors.New("please provide --policies and --snapshot")
			}
			interp, err := policy.ParseInterpretation(v.GetString("evaluate.interpretation"))
			if err != nil {
				return err
			}
			defs, err := policy.LoadFile(polPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(snapPath)
			if err != nil {
				return err
			}
			var attrs map[string]any
			if err := json.Unmarshal(data, &attrs); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}

			store := memory.NewStore()
			for _, def := range defs {
				store.PutPolicy(cliAccount, def)
			}
			svc := evaluation.New(store, store, evaluation.Options{
				Interpretation: interp,
				BatchTimeout:   v.GetDuration("evaluate.timeout"),
				Logger:         config.NewLogger(cmd.ErrOrStderr(), v.GetString("log-level"), "text"),
			})
			res, err := svc.EvaluateAll(context.Background(), domain.Scope{AccountID: cliAccount}, v.GetString("evaluate.assessment"),
				snapshot.FromAttributes(attrs), v.GetStringSlice("evaluate.policy"))
			if pErr := printJSON(cmd.OutOrStdout(), res); pErr != nil {
				return pErr
			}
			return err
		},
	}
	cmd.Flags().String("policies", "", "YAML or JSON policy file")
	cmd.Flags().String("snapshot", "", "JSON file with the assessment attributes")
	cmd.Flags().String("assessment", "local", "Assessment id recorded on violations")
	cmd.Flags().StringSlice("policy", nil, "Only evaluate these policy ids")
	cmd.Flags().String("interpretation", string(policy.InterpretViolation), "How a matching tree is read: violation or compliance")
	cmd.Flags().Duration("timeout", evaluation.DefaultBatchTimeout, "Batch deadline")
	for _, name := range []string{"policies", "snapshot", "assessment", "policy", "interpretation", "timeout"} {
		_ = v.BindPFlag("evaluate."+name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
