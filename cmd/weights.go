package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mri-classifier/internal/infrastructure/nn"
)

// Веса меньше мегабайта почти наверняка обрезаны.
const suspiciousWeightsSize = 1 << 20

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Inspect and repair weights files",
	}
	cmd.AddCommand(newWeightsVerifyCmd(), newWeightsResaveCmd())
	return cmd
}

func newWeightsVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path>",
		Short: "Check that a weights file loads into its architecture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyWeights(cmd.OutOrStdout(), args[0])
		},
	}
}

func newWeightsResaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resave <in> <out>",
		Short: "Load a weights file and write it back in the current format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resaveWeights(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

// loadWeights читает файл и собирает модель той архитектуры, что указана в манифесте.
func loadWeights(path string) (*nn.Weights, *nn.Model, error) {
	w, err := nn.ReadWeights(path)
	if err != nil {
		return nil, nil, err
	}
	arch, err := nn.LookupArchitecture(w.Architecture)
	if err != nil {
		return w, nil, err
	}
	m, err := nn.LoadModel(path, arch)
	if err != nil {
		return w, nil, err
	}
	return w, m, nil
}

func verifyWeights(out io.Writer, path string) error {
	fmt.Fprintf(out, "Checking weights file: %s\n", path)

	w, _, err := loadWeights(path)
	if w != nil {
		fmt.Fprint(out, w.Describe(5))
		if w.Size < suspiciousWeightsSize {
			fmt.Fprintf(out, "warning: file is only %d bytes\n", w.Size)
		}
	}
	if err != nil {
		fmt.Fprintf(out, "invalid: %v\n", err)
		return err
	}

	fmt.Fprintf(out, "ok: %s is valid\n", path)
	return nil
}

func resaveWeights(out io.Writer, in, dst string) error {
	fmt.Fprintf(out, "Loading %s\n", in)
	_, m, err := loadWeights(in)
	if err != nil {
		return fmt.Errorf("load %s: %w", in, err)
	}

	if err := nn.SaveWeights(dst, m); err != nil {
		return err
	}

	w, _, err := loadWeights(dst)
	if err != nil {
		return fmt.Errorf("verify %s: %w", dst, err)
	}
	fmt.Fprintf(out, "ok: wrote %s (%d bytes, %d parameters)\n", dst, w.Size, w.NumParameters())
	return nil
}
