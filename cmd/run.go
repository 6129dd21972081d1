package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pqbench/pqbench/internal/config"
	"github.com/pqbench/pqbench/internal/report"
	"github.com/pqbench/pqbench/internal/result"
	"github.com/pqbench/pqbench/internal/run"
	"github.com/pqbench/pqbench/internal/subject"
	"github.com/spf13/cobra"
)

var (
	flagMode     string
	flagQuantity string
	flagRepeats  int
	flagWarmup   int
	flagStrict   bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark run",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagMode, "mode", "", "profile override (quick or full)")
	cmd.Flags().StringVar(&flagQuantity, "quantity", "", "filter to a single quantity")
	cmd.Flags().IntVar(&flagRepeats, "repeats", 0, "override repeat count")
	cmd.Flags().IntVar(&flagWarmup, "warmup", -1, "override warmup count")
	cmd.Flags().BoolVar(&flagStrict, "strict", false, "abort on the first failed row (CI gate mode)")
	return cmd
}

// applyRunFlags overlays command-line overrides on the parsed config.
// The strict flag applies whenever it was given, in either direction, so
// --strict=false can relax a config that defaults to the gate mode.
func applyRunFlags(cmd *cobra.Command, spec *config.Spec) {
	if flagMode != "" {
		spec.Mode = flagMode
	}
	if flagRepeats > 0 {
		spec.Repeats = flagRepeats
	}
	if flagWarmup >= 0 {
		spec.Warmup = flagWarmup
	}
	if cmd.Flags().Changed("strict") {
		spec.Strict = flagStrict
	}
	if flagQuantity != "" {
		spec.Quantities = filterQuantities(spec.Quantities, flagQuantity)
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	spec, err := config.Parse(cfgFile)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, spec)
	if err := config.Finalize(spec); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}

	quantities, err := run.BuildQuantities(spec)
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(spec.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	runLog, err := result.OpenRunLog(runDir)
	if err != nil {
		return err
	}
	defer runLog.Close()

	ctx := context.Background()

	env, err := subject.Acquire(ctx, &subject.DockerOpts{
		Image:       spec.Subject.Image,
		Name:        spec.Subject.ContainerName,
		OpenSSLPath: spec.Subject.OpenSSLPath,
		CPULimit:    spec.Subject.CPULimit,
		MemoryLimit: spec.Subject.MemoryLimitMB * 1024 * 1024,
	})
	if err != nil {
		return fmt.Errorf("acquiring subject environment: %w", err)
	}
	defer func() {
		if err := env.Release(context.Background()); err != nil {
			runLog.Printf("warning: releasing subject environment: %v", err)
		}
	}()

	meta := result.NewRunMeta(spec.Mode, spec.Subject.Image)
	meta.GitSHA = spec.GitSHA
	meta.Config = map[string]any{
		"repeats":                spec.Repeats,
		"warmup":                 spec.Warmup,
		"strict":                 spec.Strict,
		"sample_count":           spec.SampleCount,
		"window_seconds":         spec.WindowSeconds,
		"per_attempt_timeout_ms": spec.PerAttemptTimeoutMS,
	}
	if v, err := env.Version(ctx); err != nil {
		runLog.Printf("warning: querying docker version: %v", err)
	} else {
		meta.DockerVersion = v
	}
	if err := result.WriteRunMeta(runDir, meta); err != nil {
		return err
	}

	storage := result.NewStorage(runDir)
	defer storage.Close()

	ctrl := &run.Controller{
		Spec:       spec,
		Env:        env,
		Quantities: quantities,
		Recorder:   storage,
		Log:        runLog,
		RunDir:     runDir,
	}
	execErr := ctrl.Execute(ctx)
	fmt.Printf("Run finished: %s\n", ctrl.State())

	if execErr == nil || errors.Is(execErr, run.ErrAborted) {
		fmt.Println("\n--- Results ---")
		if err := report.Generate(runDir, "table", os.Stdout); err != nil {
			runLog.Printf("warning: generating report: %v", err)
		}
	}
	return execErr
}

func filterQuantities(quantities []config.Quantity, name string) []config.Quantity {
	var filtered []config.Quantity
	for _, q := range quantities {
		if q.Name == name {
			filtered = append(filtered, q)
		}
	}
	return filtered
}
