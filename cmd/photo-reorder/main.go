package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quidome/devscripts-go/pkg/config"
	"github.com/quidome/devscripts-go/pkg/logger"
	"github.com/quidome/devscripts-go/pkg/plan"
	"github.com/quidome/devscripts-go/pkg/reconcile"
	"github.com/quidome/devscripts-go/pkg/reorder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.2.0"

type options struct {
	verbose    bool
	dryRun     bool
	configFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     "photo-reorder",
		Short:   "Renumber the images of a folder by capture time",
		Long:    "Photo Reorder sorts the images of a folder by the time they were taken (EXIF, falling back to the file's modification time) and names them 1.jpg, 2.png, ... either in place or as copies in another folder.",
		Version: version,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("Photo Reorder CLI")
			cmd.Printf("Version: %s\n", version)
			if opts.verbose {
				cmd.Println("Verbose mode: enabled")
			}
			if opts.dryRun {
				cmd.Println("Dry run mode: enabled")
			}
			cmd.Println("")
			cmd.Println("Use --help to see available commands and options")
		},
	}

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "print the plan without touching any file")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")

	rootCmd.AddCommand(newReorderCmd(opts))
	rootCmd.AddCommand(newScanCmd(opts))

	return rootCmd
}

func newReorderCmd(opts *options) *cobra.Command {
	reorderCmd := &cobra.Command{
		Use:   "reorder",
		Short: "Rename or copy images into capture-time order",
		Long: "Reorder the images of --folder by capture time. Without --output the files are renamed in place; " +
			"with --output they are copied there and the originals are left untouched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Sources{Flags: cmd.Flags(), ConfigFile: opts.configFile})
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			log := logger.New(cmd.ErrOrStderr(), cfg.Verbose)
			defer func() { _ = log.Sync() }()

			summary, err := reorder.Run(cmd.Context(), reorder.Options{
				Folder:    cfg.Folder,
				Output:    cfg.Output,
				Workers:   cfg.Workers,
				Location:  loc,
				Overwrite: cfg.Overwrite,
				DryRun:    cfg.DryRun,
				Logger:    log,
			})
			if err != nil {
				// Bad input earns the usage text, a failed run does not.
				if !errors.Is(err, reorder.ErrInvalidInput) {
					cmd.SilenceUsage = true
				}
				log.Error("reorder failed", zap.Error(err))
				return err
			}

			switch {
			case summary.Processed == 0:
				cmd.Println("No images found.")
			case cfg.DryRun:
				for _, op := range summary.Operations {
					cmd.Printf("%s -> %s\n", op.SourcePath, op.DestinationPath)
				}
				cmd.Printf("Dry run: %d images would be saved to %s\n", summary.Processed, summary.Destination)
			default:
				cmd.Printf("Processed %d images -> saved to %s\n", summary.Processed, summary.Destination)
			}
			return nil
		},
	}

	f := reorderCmd.Flags()
	f.String(config.KeyFolder, "", "folder holding the images (required)")
	f.String(config.KeyOutput, "", "copy into this folder instead of renaming in place")
	f.Int(config.KeyWorkers, 0, "parallel metadata readers (0 = number of CPUs)")
	f.String(config.KeyTimezone, "Local", "timezone of EXIF timestamps, e.g. Europe/Amsterdam")
	f.Bool(config.KeyOverwrite, false, "replace existing files in --output")

	return reorderCmd
}

type jsonCreatedAt struct {
	Metadata string `json:"metadata,omitempty"`
	Filestat string `json:"filestat,omitempty"`
}

type jsonRecord struct {
	SourcePath    string        `json:"source_path"`
	CreatedAt     jsonCreatedAt `json:"created_at"`
	Source        string        `json:"source"`
	FileSizeBytes int64         `json:"file_size_bytes"`
	ModTime       time.Time     `json:"mod_time"`
}

func newScanCmd(opts *options) *cobra.Command {
	var asJSON, duplicates bool

	scanCmd := &cobra.Command{
		Use:   "scan [directory]",
		Short: "List the images of a directory in capture-time order",
		Long:  "Scan a directory (the argument, or --folder) and print its images in the order reorder would number them, with the timestamp used and where it came from.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Sources{Flags: cmd.Flags(), ConfigFile: opts.configFile})
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			log := logger.New(cmd.ErrOrStderr(), cfg.Verbose)
			defer func() { _ = log.Sync() }()

			folder := cfg.Folder
			if len(args) == 1 {
				folder = args[0]
			}

			entries, err := reorder.List(reorder.Options{
				Folder:   folder,
				Workers:  cfg.Workers,
				Location: loc,
				Logger:   log,
			})
			if err != nil {
				if !errors.Is(err, reorder.ErrInvalidInput) {
					cmd.SilenceUsage = true
				}
				return err
			}
			entries = byCaptureTime(entries)

			if duplicates {
				return printDuplicates(cmd, entries)
			}
			if asJSON {
				records := make([]jsonRecord, 0, len(entries))
				for _, e := range entries {
					records = append(records, jsonRecord{
						SourcePath: e.FullPath,
						CreatedAt: jsonCreatedAt{
							Metadata: formatTime(e.CreatedAt.Metadata),
							Filestat: formatTime(e.CreatedAt.Filestat),
						},
						Source:        string(e.CreatedAt.Best.Source),
						FileSizeBytes: e.Record.FileSizeBytes,
						ModTime:       e.Record.ModTime,
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			for _, e := range entries {
				cmd.Printf("%s\t%s\t%s\n", e.Record.Path, formatTime(e.CreatedAt.Best.CreatedAt), e.CreatedAt.Best.Source)
			}
			if cfg.Verbose {
				cmd.PrintErrf("found %d images\n", len(entries))
			}
			return nil
		},
	}

	scanCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON records instead of text")
	scanCmd.Flags().BoolVar(&duplicates, "duplicates", false, "only report images with identical content")
	scanCmd.Flags().String(config.KeyFolder, "", "folder to scan when no argument is given")
	scanCmd.Flags().Int(config.KeyWorkers, 0, "parallel metadata readers (0 = number of CPUs)")
	scanCmd.Flags().String(config.KeyTimezone, "Local", "timezone of EXIF timestamps")

	return scanCmd
}

// byCaptureTime orders entries the way reorder numbers them.
func byCaptureTime(entries []reorder.Entry) []reorder.Entry {
	byPath := make(map[string]reorder.Entry, len(entries))
	items := make([]plan.Item, 0, len(entries))
	for _, e := range entries {
		byPath[e.FullPath] = e
		items = append(items, plan.Item{Path: e.FullPath, CreatedAt: e.CreatedAt.Best.CreatedAt})
	}

	ordered := make([]reorder.Entry, 0, len(entries))
	for _, it := range plan.Order(items) {
		ordered = append(ordered, byPath[it.Path])
	}
	return ordered
}

// printDuplicates prints one line per set of identical images: the earliest
// captured one first, then its copies.
func printDuplicates(cmd *cobra.Command, entries []reorder.Entry) error {
	files := make([]reconcile.File, 0, len(entries))
	for _, e := range entries {
		files = append(files, reconcile.File{
			Path:      e.FullPath,
			Size:      e.Record.FileSizeBytes,
			CreatedAt: e.CreatedAt.Best.CreatedAt,
		})
	}

	groups, err := reconcile.Duplicates(files)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		cmd.Println("No duplicates found.")
		return nil
	}
	for _, g := range groups {
		cmd.Printf("%s: %s\n", g.Keep, strings.Join(g.Duplicates, " "))
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
