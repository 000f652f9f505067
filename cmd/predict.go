package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	app "mri-classifier/internal/application"
)

func newPredictCmd() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify a single image file and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelPath != "" {
				if err := os.Setenv("MODEL_PATH", modelPath); err != nil {
					return err
				}
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.requireModel(); err != nil {
				return err
			}

			res, err := a.c.PredictionService.Predict(cmd.Context(), app.SourceCLI, data)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"prediction":        res.Label,
				"has_tumor":         res.HasTumor,
				"confidence":        res.Confidence,
				"all_probabilities": res.Probabilities.Map(),
				"message":           res.Message,
			})
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "weights file (overrides MODEL_PATH)")
	return cmd
}
