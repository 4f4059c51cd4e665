package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/facemap/internal/analyser"
	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/inference"
	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/mapping"
	"github.com/dudu/facemap/internal/metrics"
	"github.com/dudu/facemap/internal/pipeline"
	"github.com/dudu/facemap/internal/playback"
	"github.com/dudu/facemap/internal/safety"
)

// Version is the application version.
const Version = "0.1.0"

// Options holds the flags shared by every subcommand
type Options struct {
	ConfigPath  string
	EnvFiles    []string
	LogLevel    string
	LogColor    bool
	MetricsAddr string

	Source  string
	Target  string
	Output  string
	Mapping string

	MapFaces    bool
	ManyFaces   bool
	Enhance     bool
	Mirror      bool
	KeepFPS     bool
	KeepAudio   bool
	NoFilter    bool
	NoColorFix  bool
	CameraIndex int
	ModelsDir   string
	SwapPaths   bool
}

var (
	opts Options
	// settings is resolved once before any subcommand runs
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:     "facemap",
	Short:   "Swap faces in images, videos and a live camera feed",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(opts.EnvFiles...); err != nil {
			return err
		}

		level, err := logger.ParseLevel(opts.LogLevel)
		if err != nil {
			return err
		}
		logger.Init(level, os.Stderr, opts.LogColor)

		s, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, &s)
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		settings = s

		if opts.SwapPaths {
			paths := config.Paths{Source: opts.Source, Target: opts.Target}
			if !paths.Swap() {
				return fmt.Errorf("--swap-paths needs a still source and a still target")
			}
			opts.Source, opts.Target = paths.Source, paths.Target
		}

		return inference.Initialize(inference.Options{Library: s.Models.Library, CoreML: s.Models.CoreML})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := inference.Shutdown(); err != nil {
			logger.Warn("Main", "failed to shut down ONNX Runtime: %v", err)
		}
	},
	SilenceUsage: true,
}

// applyFlags lets explicitly set flags win over the settings file
func applyFlags(cmd *cobra.Command, s *config.Settings) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("map-faces", func() { s.MapFaces = opts.MapFaces })
	set("many-faces", func() { s.ManyFaces = opts.ManyFaces })
	set("enhance", func() { s.FaceEnhancer = opts.Enhance })
	set("mirror", func() { s.Mirror = opts.Mirror })
	set("keep-fps", func() { s.KeepFPS = opts.KeepFPS })
	set("keep-audio", func() { s.KeepAudio = opts.KeepAudio })
	set("no-filter", func() { s.ContentFilter = !opts.NoFilter })
	set("no-color-fix", func() { s.ColorCorrection = !opts.NoColorFix })
	set("camera", func() { s.Capture.CameraIndex = opts.CameraIndex })
	set("models-dir", func() { s.Models.Dir = opts.ModelsDir })
	if opts.Mapping != "" {
		s.MapFaces = true
	}
}

// Execute runs the root command until it finishes or the process is
// interrupted
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "TOML settings file")
	pf.StringSliceVar(&opts.EnvFiles, "env", []string{".env"}, "dotenv files to load")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "debug, info, warn, error or silent")
	pf.BoolVar(&opts.LogColor, "log-color", false, "colour log levels")
	pf.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	pf.StringVarP(&opts.Source, "source", "s", "", "source face image")
	pf.StringVarP(&opts.Target, "target", "t", "", "target image or video")
	pf.StringVarP(&opts.Output, "output", "o", "", "output file (default output.png/output.mp4 next to the target)")
	pf.StringVar(&opts.Mapping, "mapping", "", "mapping file pairing sources with targets (implies --map-faces)")
	pf.BoolVar(&opts.SwapPaths, "swap-paths", false, "exchange the source and target images")

	pf.BoolVar(&opts.MapFaces, "map-faces", false, "swap faces by mapping")
	pf.BoolVar(&opts.ManyFaces, "many-faces", false, "swap every face with the source")
	pf.BoolVar(&opts.Enhance, "enhance", false, "restore swapped faces with GFPGAN")
	pf.BoolVar(&opts.Mirror, "mirror", false, "mirror the camera image")
	pf.BoolVar(&opts.KeepFPS, "keep-fps", false, "keep the target frame rate")
	pf.BoolVar(&opts.KeepAudio, "keep-audio", false, "keep the target audio")
	pf.BoolVar(&opts.NoFilter, "no-filter", false, "disable the content filter")
	pf.BoolVar(&opts.NoColorFix, "no-color-fix", false, "disable color correction of swapped faces")
	pf.IntVarP(&opts.CameraIndex, "camera", "c", 0, "camera device index")
	pf.StringVar(&opts.ModelsDir, "models-dir", "", "directory holding the model files")
}

// app holds the models shared by a run
type app struct {
	analyser *analyser.Analyser
	chain    *pipeline.Chain
	gate     *safety.Gate
	metrics  *metrics.Metrics
}

// openApp loads every model the settings enable. A metrics endpoint is
// served until ctx is done when --metrics-addr is set.
func openApp(ctx context.Context) (*app, error) {
	a, err := analyser.Open(settings,
		analyser.WithSampleStep(settings.VideoSampleStep), analyser.WithProgress(os.Stderr))
	if err != nil {
		return nil, err
	}
	chain, err := pipeline.Build(settings, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	gate, err := safety.Open(settings, safety.WithProgress(os.Stderr))
	if err != nil {
		chain.Close()
		a.Close()
		return nil, err
	}
	logger.Info("Main", "processors: %v", chain.Names())

	m := metrics.New()
	if opts.MetricsAddr != "" {
		go func() {
			logger.Info("Metrics", "serving on %s/metrics", opts.MetricsAddr)
			if err := m.Serve(ctx, opts.MetricsAddr); err != nil {
				logger.Error("Metrics", "server stopped: %v", err)
			}
		}()
	}
	return &app{analyser: a, chain: chain, gate: gate, metrics: m}, nil
}

func (a *app) driver() *playback.Driver {
	return playback.New(settings, a.chain, a.gate, a.analyser,
		playback.WithMetrics(a.metrics),
		playback.WithProgress(os.Stderr),
		playback.WithStatus(func(msg string) { fmt.Println("[facemap]", msg) }),
	)
}

// table builds the mapping table from --mapping. Pairs whose images hold no
// face are reported and left incomplete.
func (a *app) table() (mapping.Table, error) {
	if !settings.MapFaces {
		return mapping.Table{}, nil
	}
	if opts.Mapping == "" {
		return mapping.Table{}, fmt.Errorf("mapping mode needs --mapping; run 'facemap discover' to start one")
	}
	mf, err := config.LoadMapping(opts.Mapping)
	if err != nil {
		return mapping.Table{}, err
	}
	ed := mapping.NewEditor(a.analyser, nil)
	ed.Subscribe(func(t mapping.Table) {
		logger.Debug("Mapping", "%d entries, valid=%v", t.Len(), t.Valid())
	})
	t, errs := mf.Table(ed)
	for _, err := range errs {
		logger.Warn("Mapping", "%v", err)
	}
	return t, nil
}

func (a *app) Close() {
	if err := a.chain.Close(); err != nil {
		logger.Warn("Main", "failed to close processors: %v", err)
	}
	if err := a.gate.Close(); err != nil {
		logger.Warn("Main", "failed to close content filter: %v", err)
	}
	if err := a.analyser.Close(); err != nil {
		logger.Warn("Main", "failed to close analyser: %v", err)
	}
}
