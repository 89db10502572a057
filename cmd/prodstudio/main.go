package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/manash/prodstudio/internal/batch"
	"github.com/manash/prodstudio/internal/config"
	"github.com/manash/prodstudio/internal/display"
	"github.com/manash/prodstudio/internal/image"
	"github.com/manash/prodstudio/internal/journal"
	"github.com/manash/prodstudio/internal/keys"
	"github.com/manash/prodstudio/internal/logging"
	"github.com/manash/prodstudio/internal/netcheck"
	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/internal/provider/gemini"
	"github.com/manash/prodstudio/internal/repl"
	"github.com/manash/prodstudio/internal/studio"
	"github.com/manash/prodstudio/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

// keyEnvVars are consulted in order when no flag or stored key is present.
var keyEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

var (
	flagAPIKey     string
	flagDataDir    string
	flagLogLevel   string
	flagImageModel string
	flagNoJournal  bool

	flagSubject     string
	flagReference   string
	flagPresets     []string
	flagBrief       string
	flagAspect      string
	flagTransparent bool
	flagAuto        bool
	flagUpscale     string
	flagOutput      string
	flagShow        bool

	flagOutputDir   string
	flagParallel    int
	flagStopOnError bool
	flagDelayMs     int

	flagAddr string
)

type App struct {
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
	GetEnv      func(string) string
	LoadConfig  func() (*config.Config, error)
	NewKeyStore func() (*keys.Store, error)
	NewProvider func(ctx context.Context, cfg *provider.Config, logger zerolog.Logger) (provider.Provider, error)
	NewChecker  func(addr string, timeout time.Duration) netcheck.Checker
}

func DefaultApp() *App {
	return &App{
		In:     os.Stdin,
		Out:    os.Stdout,
		Err:    os.Stderr,
		GetEnv: os.Getenv,
		LoadConfig: func() (*config.Config, error) {
			return config.Load(".env")
		},
		NewKeyStore: keys.NewStore,
		NewProvider: func(ctx context.Context, cfg *provider.Config, logger zerolog.Logger) (provider.Provider, error) {
			return gemini.New(ctx, cfg, logger)
		},
		NewChecker: func(addr string, timeout time.Duration) netcheck.Checker {
			return netcheck.NewProbe(addr, timeout)
		},
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := DefaultApp()
	return newRootCmd(app).ExecuteContext(ctx)
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prodstudio",
		Short: "AI product photo studio",
		Long: `prodstudio turns a product photo into a styled product shot.

Upload a product (subject) and optionally a style reference, pick camera,
lighting, mockup and retouch presets or let the AI choose them, then
generate and upscale the result with Gemini.

Examples:
  prodstudio
  prodstudio generate --subject bottle.png --preset lighting=lighting_softbox -o shot.png
  prodstudio generate --subject bottle.png --reference beach.jpg --auto --upscale 4k
  prodstudio compose --preset mockup=mockup_marble --aspect 9:16
  prodstudio batch shoot.json --parallel 3 --output-dir shots
  prodstudio serve --addr :8080`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStudio(cmd.Context(), app)
		},
	}
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagAPIKey, "api-key", "", "Gemini API key (defaults to stored key, then GEMINI_API_KEY)")
	pf.StringVar(&flagDataDir, "data-dir", "", "directory for the render journal (defaults to STUDIO_DATA_DIR)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&flagImageModel, "model", "m", "", "image model (defaults to STUDIO_IMAGE_MODEL)")
	pf.BoolVar(&flagNoJournal, "no-journal", false, "do not record renders")

	cmd.AddCommand(
		newStudioCmd(app),
		newComposeCmd(app),
		newGenerateCmd(app),
		newBatchCmd(app),
		newPresetsCmd(app),
		newKeysCmd(app),
		newHistoryCmd(app),
		newServeCmd(app),
	)
	return cmd
}

func addStyleFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&flagPresets, "preset", "p", nil, "preset as category=id (repeatable)")
	cmd.Flags().StringVarP(&flagBrief, "brief", "b", "", "creative brief")
	cmd.Flags().StringVarP(&flagAspect, "aspect", "a", string(models.DefaultAspectRatio), "aspect ratio")
	cmd.Flags().BoolVarP(&flagTransparent, "transparent", "t", false, "transparent background")
	cmd.Flags().BoolVar(&flagAuto, "auto", false, "let the AI pick presets from subject and reference")
}

// runtime is what every command that talks to the studio needs.
type runtime struct {
	cfg      *config.Config
	logger   zerolog.Logger
	provider provider.Provider
	checker  netcheck.Checker
	journal  *journal.Store
}

func (app *App) loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagImageModel != "" {
		cfg.ImageModel = flagImageModel
	}
	if flagNoJournal {
		cfg.Journal = false
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat, app.Err), nil
}

// resolveKey falls back to the key parsed into cfg when the resolver finds none.
func (app *App) resolveKey(cfg *config.Config, logger zerolog.Logger) (string, error) {
	store, err := app.NewKeyStore()
	if err != nil {
		logger.Warn().Err(err).Msg("key store unavailable")
		store = nil
	}
	r := &keys.Resolver{Store: store, GetEnv: app.GetEnv, EnvVars: keyEnvVars}
	key, source, err := r.Resolve(flagAPIKey, keys.DefaultProvider)
	if err != nil {
		if k := cfg.Key(); k != "" {
			logger.Debug().Str("source", "config").Msg("using API key")
			return k, nil
		}
		return "", err
	}
	logger.Debug().Str("source", source).Msg("using API key")
	return key, nil
}

func (app *App) newRuntime(ctx context.Context) (*runtime, error) {
	cfg, logger, err := app.loadConfig()
	if err != nil {
		return nil, err
	}

	key, err := app.resolveKey(cfg, logger)
	if err != nil {
		return nil, err
	}
	prov, err := app.NewProvider(ctx, &provider.Config{
		APIKey:     key,
		BaseURL:    cfg.BaseURL,
		TextModel:  cfg.TextModel,
		ImageModel: cfg.ImageModel,
		Timeout:    cfg.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		provider: prov,
		checker:  app.NewChecker(cfg.ProbeAddr, cfg.ProbeTimeout),
	}
	if cfg.Journal {
		store, err := journal.NewStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		rt.journal = store
	}
	return rt, nil
}

func (rt *runtime) Close() error {
	if rt.journal != nil {
		return rt.journal.Close()
	}
	return nil
}

// newManager returns nil when journaling is off.
func (rt *runtime) newManager() *journal.Manager {
	if rt.journal == nil {
		return nil
	}
	return journal.NewManager(rt.journal, rt.cfg.ImageDir(), rt.cfg.ImageModel)
}

func (rt *runtime) studioFor(id string, mgr *journal.Manager) *studio.Session {
	cfg := &studio.Config{
		ID:       id,
		Provider: rt.provider,
		Network:  rt.checker,
		Logger:   rt.logger,
	}
	if mgr != nil {
		cfg.OnArtifact = mgr.Hook(rt.logger)
	}
	return studio.New(cfg)
}

// newStudio builds a session with its own journal manager, nil when journaling is off.
func (rt *runtime) newStudio(id string) (*studio.Session, *journal.Manager) {
	mgr := rt.newManager()
	return rt.studioFor(id, mgr), mgr
}

func newStudioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "studio",
		Short: "Start the interactive studio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStudio(cmd.Context(), app)
		},
	}
}

func runStudio(ctx context.Context, app *App) error {
	rt, err := app.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, mgr := rt.newStudio("")
	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		Studio:    sess,
		Loader:    image.NewLoader(),
		Saver:     image.NewSaver(),
		Displayer: display.New(app.Out, false),
		Journal:   mgr,
	})
	return r.Run(ctx)
}

func parsePresets(values []string) (map[models.Category][]string, error) {
	presets := make(map[models.Category][]string)
	for _, v := range values {
		cat, id, ok := strings.Cut(v, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid preset %q: want category=id", v)
		}
		c, err := models.ParseCategory(cat)
		if err != nil {
			return nil, fmt.Errorf("invalid preset %q: %w", v, err)
		}
		presets[c] = append(presets[c], id)
	}
	return presets, nil
}

func styleFromFlags() (batch.Style, error) {
	presets, err := parsePresets(flagPresets)
	if err != nil {
		return batch.Style{}, err
	}
	aspect := models.AspectRatio(flagAspect)
	if !aspect.IsValid() {
		return batch.Style{}, fmt.Errorf("%w %q (valid: %v)", models.ErrInvalidAspectRatio, flagAspect, models.ValidAspectRatios())
	}
	return batch.Style{
		Presets:     presets,
		Brief:       strings.TrimSpace(flagBrief),
		AspectRatio: aspect,
		Transparent: flagTransparent,
		Auto:        flagAuto,
	}, nil
}

func newComposeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Print the prompt a generation would send",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompose(cmd.Context(), app)
		},
	}
	addStyleFlags(cmd)
	return cmd
}

func runCompose(ctx context.Context, app *App) error {
	style, err := styleFromFlags()
	if err != nil {
		return err
	}
	sess := studio.New(&studio.Config{Logger: zerolog.Nop()})
	if err := style.Apply(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintln(app.Out, sess.ComposePrompt())
	return nil
}

func newGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one product shot and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd.Context(), app)
		},
	}
	addStyleFlags(cmd)
	cmd.Flags().StringVarP(&flagSubject, "subject", "s", "", "product image (file or URL)")
	cmd.Flags().StringVarP(&flagReference, "reference", "r", "", "style reference image (file or URL)")
	cmd.Flags().StringVarP(&flagUpscale, "upscale", "u", "", "upscale the result (hd, 4k)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output filename")
	cmd.Flags().BoolVarP(&flagShow, "show", "S", false, "display the image in the terminal")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func runGenerate(ctx context.Context, app *App) error {
	var target models.UpscaleTarget
	if flagUpscale != "" {
		t, err := models.ParseUpscaleTarget(flagUpscale)
		if err != nil {
			return fmt.Errorf("%w %q: must be one of %v", err, flagUpscale, models.ValidUpscaleTargets())
		}
		target = t
	}
	style, err := styleFromFlags()
	if err != nil {
		return err
	}
	if style.Auto && flagReference == "" {
		return fmt.Errorf("--auto needs a --reference image")
	}

	rt, err := app.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	subject, reference, err := image.NewLoader().LoadPair(ctx, flagSubject, flagReference)
	if err != nil {
		return err
	}

	sess, _ := rt.newStudio("")
	if err := sess.SetSubject(ctx, subject); err != nil {
		return err
	}
	if err := sess.SetReference(ctx, reference); err != nil {
		return err
	}
	if flagAuto {
		fmt.Fprintln(app.Out, "Asking the AI art director for presets...")
	}
	if err := style.Apply(ctx, sess); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Generating with %s...\n", rt.cfg.ImageModel)
	a, err := sess.Generate(ctx)
	if err != nil {
		return err
	}

	if target != "" {
		fmt.Fprintf(app.Out, "Upscaling to %s...\n", strings.ToUpper(target.String()))
		if a, err = sess.Upscale(ctx, target); err != nil {
			return err
		}
	}

	path, err := image.NewSaver().Save(a, flagOutput)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Saved: %s (%s)\n", path, display.Describe(a))

	if flagShow {
		if err := display.New(app.Out, false).Show(a); err != nil {
			fmt.Fprintf(app.Err, "Warning: failed to display: %v\n", err)
		}
	}

	fmt.Fprintln(app.Out, "Done!")
	return nil
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Generate a shot for every subject listed in a .txt or .json file",
		Long: `batch reads a shoot list and generates one product shot per entry.

A .txt file holds one "subject [reference]" pair per line. A .json file holds
an array of {"subject", "reference", "presets", "brief", "aspect",
"transparent", "auto", "output"} objects whose style is layered over the
style flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), app, args[0])
		},
	}
	addStyleFlags(cmd)
	cmd.Flags().StringVarP(&flagUpscale, "upscale", "u", "", "upscale every result (hd, 4k)")
	cmd.Flags().StringVarP(&flagOutputDir, "output-dir", "d", ".", "directory for the results")
	cmd.Flags().IntVarP(&flagParallel, "parallel", "P", 1, "shots to run at once")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "stop at the first failed shot")
	cmd.Flags().IntVar(&flagDelayMs, "delay", 0, "delay between sequential shots in milliseconds")
	return cmd
}

func runBatch(ctx context.Context, app *App, file string) error {
	var target models.UpscaleTarget
	if flagUpscale != "" {
		t, err := models.ParseUpscaleTarget(flagUpscale)
		if err != nil {
			return fmt.Errorf("%w %q: must be one of %v", err, flagUpscale, models.ValidUpscaleTargets())
		}
		target = t
	}
	if flagParallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}
	style, err := styleFromFlags()
	if err != nil {
		return err
	}
	items, err := batch.ParseFile(file)
	if err != nil {
		return err
	}

	rt, err := app.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr := rt.newManager()
	if mgr != nil {
		if _, err := mgr.StartNew(ctx, "batch "+filepath.Base(file)); err != nil {
			return err
		}
	}

	fmt.Fprintf(app.Out, "Generating %d shots with %s...\n", len(items), rt.cfg.ImageModel)
	proc := batch.NewProcessor(func() *studio.Session {
		return rt.studioFor("", mgr)
	}, image.NewLoader(), image.NewSaver(), app.Out, app.Err)

	results, err := proc.Process(ctx, items, &batch.Options{
		OutputDir:   flagOutputDir,
		Style:       style,
		Upscale:     target,
		Parallel:    flagParallel,
		StopOnError: flagStopOnError,
		DelayMs:     flagDelayMs,
	})
	proc.PrintSummary(results)
	if err != nil {
		return err
	}
	if n := countFailed(results); n > 0 {
		return fmt.Errorf("%d of %d shots failed", n, len(results))
	}
	return nil
}

func countFailed(results []batch.Result) int {
	n := 0
	for _, r := range results {
		if r.Error != nil {
			n++
		}
	}
	return n
}
