package main

import (
	"os"

	"github.com/quidome/devscripts-go/pkg/logger"
	"github.com/quidome/devscripts-go/pkg/sanity"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := sanity.DefaultOptions()
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "sanity-check",
		Short: "Train a tiny regression network to check the numeric backend",
		Long:  "Sanity Check fits a two-layer network to random data for a few epochs and fails if any loss is NaN or infinite.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(cmd.ErrOrStderr(), verbose)
			defer func() { _ = log.Sync() }()

			cmd.Printf("Using device: %s\n", sanity.Device)

			losses, err := sanity.Train(opts, func(epoch int, loss float64) {
				cmd.Printf("Epoch %d, Loss: %.4f\n", epoch, loss)
			})
			if err != nil {
				log.Error("training failed", zap.Error(err), zap.Int("completed_epochs", len(losses)))
				return err
			}
			log.Debug("training finished", zap.Float64s("losses", losses))
			return nil
		},
	}

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	f := rootCmd.Flags()
	f.Uint64Var(&opts.Seed, "seed", 0, "seed for data and weights")
	f.IntVar(&opts.Epochs, "epochs", opts.Epochs, "training epochs")
	f.Float64Var(&opts.LearningRate, "lr", opts.LearningRate, "Adam learning rate")
	f.IntVar(&opts.Samples, "samples", opts.Samples, "random training samples")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	return rootCmd
}
