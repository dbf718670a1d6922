// Command corrview shows an image next to a random augmentation of itself with
// the extracted correspondences drawn in matching colours.
package main

import (
	"flag"
	"fmt"
	"os"

	"synthcorr/internal/config"
	"synthcorr/internal/imageio"
	"synthcorr/internal/logging"
	"synthcorr/internal/pipeline"
	"synthcorr/internal/tensor"
	"synthcorr/internal/version"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
)

// viewer is the single corrview window.
type viewer struct {
	fyne.Window
	pipeline *pipeline.Pipeline
	batch    tensor.Batch
	k        int
	logger   logrus.FieldLogger

	view      *canvas.Image
	statusBar *widget.Label
}

func main() {
	configPath := flag.String("c", "", "TOML config file")
	k := flag.Int("k", 0, "pairs to draw (overrides pipeline.correspondences)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: corrview [-c config.toml] [-k pairs] <image>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	batch, err := imageio.LoadBatch(flag.Args(), cfg.Image.Height, cfg.Image.Width)
	if err != nil {
		logger.WithError(err).Fatal("failed to load image")
	}
	p, err := pipeline.FromConfig(cfg, pipeline.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("failed to build pipeline")
	}
	if *k == 0 {
		*k = cfg.Pipeline.Correspondences
	}

	a := app.New()
	v := &viewer{
		Window:   a.NewWindow(fmt.Sprintf("corrview %s: %s", version.Version, flag.Arg(0))),
		pipeline: p,
		batch:    batch,
		k:        *k,
		logger:   logger,
	}
	v.setupUI()
	v.resample()

	v.Resize(fyne.NewSize(1100, 560))
	v.ShowAndRun()
}

func (v *viewer) setupUI() {
	v.view = canvas.NewImageFromImage(nil)
	v.view.FillMode = canvas.ImageFillContain
	v.view.ScaleMode = canvas.ImageScalePixels
	v.statusBar = widget.NewLabel("Ready")

	toolbar := container.NewHBox(
		widget.NewButton("Resample", v.resample),
		widget.NewLabel("reference | augmented"),
	)

	v.SetContent(container.NewBorder(
		toolbar,
		container.NewPadded(v.statusBar),
		nil,
		nil,
		v.view,
	))
}

// resample draws a new transform and redraws both branches.
func (v *viewer) resample() {
	res, err := v.pipeline.Run(v.batch, v.k)
	if err != nil {
		v.statusBar.SetText("Error: " + err.Error())
		v.logger.WithError(err).Error("pipeline run failed")
		return
	}

	set := res.Sets[0]
	ref := imageio.ToImage(res.Reference.Images[0])
	aug := imageio.ToImage(res.Augmented.Images[0])
	imageio.DrawMatches(ref, aug, set)

	v.view.Image = imageio.SideBySide(ref, aug, 8)
	v.view.Refresh()

	if set.Empty() {
		v.statusBar.SetText(fmt.Sprintf("%s: no correspondences (%s)", res.Transform.Kind, set.Reason))
		return
	}
	v.statusBar.SetText(fmt.Sprintf("%s: %d pairs, %d distinct, %d exact matches of %d candidates",
		res.Transform.Kind, set.Len(), set.Distinct(), set.Matches, set.Candidates))
}
