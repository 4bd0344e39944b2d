package main

import (
	"os"

	"github.com/quidome/devscripts-go/pkg/dice"
	"github.com/quidome/devscripts-go/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	numRolls int
	sides    int
	seed     int64
	noPlot   bool
	width    int
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "dice-toss",
		Short: "Simulate dice tosses and show the outcome probabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(cmd.ErrOrStderr(), opts.verbose)
			defer func() { _ = log.Sync() }()

			var seed *int64
			if cmd.Flags().Changed("seed") {
				seed = &opts.seed
			}

			result, err := dice.Simulate(dice.NewRand(seed), opts.numRolls, opts.sides)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			statistic, p := result.ChiSquare()
			log.Debug("simulated",
				zap.Int("rolls", result.Rolls),
				zap.Int("sides", result.Sides()),
				zap.Float64("chi_square", statistic),
				zap.Float64("p_value", p))

			cmd.Printf("Counts: %s\n", dice.FormatCounts(result))
			cmd.Printf("Probabilities: %s\n", dice.FormatProbabilities(result))
			cmd.Printf("Chi-square vs fair die: %.4f (p=%.4f)\n", statistic, p)

			if opts.noPlot {
				return nil
			}
			cmd.Println("")
			return dice.Plot(cmd.OutOrStdout(), result, opts.width)
		},
	}

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	f := rootCmd.Flags()
	f.IntVar(&opts.numRolls, "num-rolls", 1000, "number of tosses")
	f.IntVar(&opts.sides, "sides", 6, "faces on the die")
	f.Int64Var(&opts.seed, "seed", 0, "seed for a reproducible run (random when unset)")
	f.BoolVar(&opts.noPlot, "no-plot", false, "skip the probability chart")
	f.IntVar(&opts.width, "width", 50, "width of a probability-1 bar in the chart")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")

	return rootCmd
}
