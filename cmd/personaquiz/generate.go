package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"personaquiz"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Personalize every question for a profile and print them as JSON",
	Long:  "Personalize the whole question bank for the profile given by flags, using the same scheduler as play, and write the items as JSON. Nothing is persisted.",
	RunE:  runGenerate,
}

var (
	genAge        string
	genOccupation string
	genGender     string
	genInterests  string
	genOutput     string
	genTimeout    time.Duration
)

func init() {
	generateCmd.Flags().StringVar(&genAge, "age", "", "Age of the quiz taker")
	generateCmd.Flags().StringVar(&genOccupation, "occupation", "", "Occupation of the quiz taker (required)")
	generateCmd.Flags().StringVar(&genGender, "gender", "", "Gender of the quiz taker")
	generateCmd.Flags().StringVar(&genInterests, "interests", "", "Comma separated interests")
	generateCmd.Flags().StringVarP(&genOutput, "out", "o", "", "Output file (default: stdout)")
	generateCmd.Flags().DurationVar(&genTimeout, "timeout", 10*time.Minute, "Give up waiting after this long")
	_ = generateCmd.MarkFlagRequired("occupation")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	profile := personaquiz.UserProfile{Age: personaquiz.DefaultAge}
	for field, value := range map[personaquiz.ProfileField]string{
		personaquiz.FieldAge:        genAge,
		personaquiz.FieldOccupation: genOccupation,
		personaquiz.FieldGender:     genGender,
		personaquiz.FieldInterests:  genInterests,
	} {
		if err := profile.SetField(field, value); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), genTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := personaquiz.OpenSession(ctx, personaquiz.NewMemoryStore(), a.templates, a.logger)
	if err != nil {
		return err
	}
	a.startTranscript(profile)

	sched := a.newScheduler(session)
	started := time.Now()
	sched.Start(personaquiz.StepQuiz, profile, a.templates)
	if err := sched.Wait(ctx); err != nil {
		sched.Cancel()
		return fmt.Errorf("generation did not finish: %w", err)
	}

	stats := sched.Stats()
	a.logger.Info("generation finished",
		zap.Duration("took", time.Since(started)),
		zap.Int("dispatched", stats.Dispatched),
		zap.Int("peak_in_flight", stats.Peak))

	data, err := json.MarshalIndent(session.Snapshot().Items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}
	data = append(data, '\n')

	if genOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(genOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d questions to %s\n", len(a.templates), genOutput)
	return nil
}
