// Package main provides the synthcorr command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"synthcorr/internal/config"
	"synthcorr/internal/export"
	"synthcorr/internal/imageio"
	"synthcorr/internal/logging"
	"synthcorr/internal/metrics"
	"synthcorr/internal/pipeline"
	"synthcorr/internal/server"
	"synthcorr/internal/version"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	runK       int
	runOutput  string
	runPreview string
	runSeed    int64

	serveAddr string
)

var rootCmd = &cobra.Command{
	Use:           "synthcorr",
	Short:         "Generate synthetic pixel correspondences from random geometric augmentation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [flags] image...",
	Short: "Augment images once and write their correspondences",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCorrespond,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the correspondence pipeline over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file (defaults apply when empty)")

	runCmd.Flags().IntVarP(&runK, "correspondences", "k", 0, "pairs per image (overrides pipeline.correspondences)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output file, .json, .cbor or .csv")
	runCmd.Flags().StringVar(&runPreview, "preview", "", "directory for PNG previews with drawn matches")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed (overrides pipeline.seed when set)")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")

	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("synthcorr failed")
		os.Exit(1)
	}
}

func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runCorrespond(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Pipeline.Seed = runSeed
	}
	k := cfg.Pipeline.Correspondences
	if runK != 0 {
		k = runK
	}

	batch, err := imageio.LoadBatch(args, cfg.Image.Height, cfg.Image.Width)
	if err != nil {
		return err
	}
	shape, err := batch.Shape()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"images": len(args),
		"shape":  shape,
		"k":      k,
	}).Info("loaded images")

	p, err := pipeline.FromConfig(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}
	res, err := p.Run(batch, k)
	if err != nil {
		return err
	}

	rec, err := export.NewRecord(res, k, args)
	if err != nil {
		return err
	}
	if runOutput != "" {
		if err := export.WriteFile(runOutput, rec); err != nil {
			return err
		}
		logger.WithField("path", runOutput).Info("wrote correspondences")
	} else {
		data, err := export.Marshal(rec, export.FormatJSON)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	if runPreview != "" {
		if err := writePreviews(runPreview, args, res); err != nil {
			return err
		}
		logger.WithField("dir", runPreview).Info("wrote previews")
	}

	for i, set := range res.Sets {
		if set.Empty() {
			continue
		}
		fitErr, err := set.FitError()
		if err != nil {
			continue
		}
		logger.WithFields(logrus.Fields{
			"image":     args[i],
			"pairs":     set.Len(),
			"distinct":  set.Distinct(),
			"fit_error": fitErr,
		}).Debug("correspondence set")
	}
	return nil
}

func writePreviews(dir string, names []string, res *pipeline.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preview dir: %w", err)
	}
	for i, set := range res.Sets {
		ref := imageio.ToImage(res.Reference.Images[i])
		aug := imageio.ToImage(res.Augmented.Images[i])
		imageio.DrawMatches(ref, aug, set)

		base := strings.TrimSuffix(filepath.Base(names[i]), filepath.Ext(names[i]))
		path := filepath.Join(dir, fmt.Sprintf("%03d_%s.png", i, base))
		if err := imageio.SavePNG(path, imageio.SideBySide(ref, aug, 8)); err != nil {
			return err
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := pipeline.FromConfig(cfg, pipeline.WithLogger(logger), pipeline.WithMetrics(metrics.New(reg)))
	if err != nil {
		return err
	}
	srv := server.New(cfg, p, reg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return srv.Shutdown()
	}
}
