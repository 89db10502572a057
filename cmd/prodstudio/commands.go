package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manash/prodstudio/internal/catalog"
	"github.com/manash/prodstudio/internal/httpapi"
	"github.com/manash/prodstudio/internal/journal"
	"github.com/manash/prodstudio/internal/keys"
	"github.com/manash/prodstudio/internal/studio"
	"github.com/manash/prodstudio/pkg/models"
)

var (
	flagProvider string
	flagDelete   bool
	flagRename   string
)

func newPresetsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "presets [category]",
		Short: "List the preset catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresets(app, args)
		},
	}
}

func runPresets(app *App, args []string) error {
	cats := models.Categories()
	if len(args) == 1 {
		c, err := models.ParseCategory(args[0])
		if err != nil {
			return fmt.Errorf("%w: %q", err, args[0])
		}
		cats = []models.Category{c}
	}

	cat := catalog.Default()
	for i, c := range cats {
		if i > 0 {
			fmt.Fprintln(app.Out)
		}
		fmt.Fprintf(app.Out, "%s (%s):\n", c.Label(), c)
		for _, p := range cat.List(c) {
			fmt.Fprintf(app.Out, "  %-30s %s\n", p.ID, p.Description)
		}
	}
	return nil
}

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
	}
	cmd.PersistentFlags().StringVar(&flagProvider, "provider", keys.DefaultProvider, "provider name")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [key]",
			Short: "Store an API key (prompts when omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runKeysSet(app, args)
			},
		},
		&cobra.Command{
			Use:   "get",
			Short: "Show the stored key, masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runKeysGet(app)
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runKeysDelete(app)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List providers with a stored key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runKeysList(app)
			},
		},
	)
	return cmd
}

func readKey(app *App) (string, error) {
	if f, ok := app.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(app.Out, "API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(app.Out)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(app.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runKeysSet(app *App, args []string) error {
	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}

	var key string
	if len(args) == 1 {
		key = strings.TrimSpace(args[0])
	} else if key, err = readKey(app); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if err := store.Set(flagProvider, key); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Stored %s key %s in %s\n", flagProvider, keys.MaskKey(key), store.Path())
	return nil
}

func runKeysGet(app *App) error {
	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	key, err := store.Get(flagProvider)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%s: %s\n", flagProvider, keys.MaskKey(key))
	return nil
}

func runKeysDelete(app *App) error {
	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	if err := store.Delete(flagProvider); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Deleted %s key\n", flagProvider)
	return nil
}

func runKeysList(app *App) error {
	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	names, err := store.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(app.Out, "No stored keys.")
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(app.Out, n)
	}
	return nil
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List recorded sessions, or the renders of one session",
		Long: `Without arguments, history lists the recorded studio sessions.
With a session id (or a unique prefix of one) it lists that session's renders.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), app, args)
		},
	}
	cmd.Flags().BoolVar(&flagDelete, "delete", false, "delete the session and its images")
	cmd.Flags().StringVar(&flagRename, "rename", "", "rename the session")
	return cmd
}

func (app *App) openJournal() (*journal.Manager, func() error, error) {
	cfg, _, err := app.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := journal.NewStore(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return journal.NewManager(store, cfg.ImageDir(), cfg.ImageModel), store.Close, nil
}

func findSession(sessions []*journal.Session, prefix string) (*journal.Session, error) {
	for _, s := range sessions {
		if s.ID == prefix {
			return s, nil
		}
	}
	var match *journal.Session
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, prefix) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous session id %q", prefix)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", journal.ErrSessionNotFound, prefix)
	}
	return match, nil
}

func runHistory(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 && (flagDelete || flagRename != "") {
		return fmt.Errorf("--delete and --rename need a session id")
	}

	mgr, closeFn, err := app.openJournal()
	if err != nil {
		return err
	}
	defer closeFn()

	sessions, err := mgr.ListSessions(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if len(sessions) == 0 {
			fmt.Fprintln(app.Out, "No recorded sessions.")
			return nil
		}
		for _, s := range sessions {
			name := s.Name
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(app.Out, "%s  %-24s %s\n", s.ID[:8], name, humanize.Time(s.UpdatedAt))
		}
		return printStats(ctx, app, mgr)
	}

	sess, err := findSession(sessions, args[0])
	if err != nil {
		return err
	}

	if flagDelete {
		if err := mgr.DeleteSession(ctx, sess.ID); err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Deleted session %s\n", sess.ID)
		return nil
	}

	if err := mgr.Load(ctx, sess.ID); err != nil {
		return err
	}
	if flagRename != "" {
		if err := mgr.RenameSession(ctx, flagRename); err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Renamed session %s to %q\n", sess.ID[:8], flagRename)
		return nil
	}

	renders, err := mgr.History(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Session %s (%d renders)\n", sess.ID, len(renders))
	for _, r := range renders {
		op := r.Operation
		if r.Metadata.Target != "" {
			op += " " + r.Metadata.Target
		}
		fmt.Fprintf(app.Out, "  %s  %-12s %8s  %s\n",
			journal.FormatTimestamp(r.Timestamp), op, humanize.Bytes(uint64(r.ByteSize)), r.ImagePath)
	}
	return printStats(ctx, app, mgr)
}

func printStats(ctx context.Context, app *App, mgr *journal.Manager) error {
	stats, err := mgr.Stats(ctx)
	if err != nil {
		return err
	}
	for _, st := range stats {
		fmt.Fprintf(app.Out, "%s: %d (%s)\n", st.Operation, st.Count, humanize.Bytes(uint64(st.TotalBytes)))
	}
	return nil
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve studio sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), app)
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (defaults to STUDIO_HTTP_ADDR)")
	return cmd
}

func runServe(ctx context.Context, app *App) error {
	rt, err := app.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.cfg.HTTPAddr
	if flagAddr != "" {
		addr = flagAddr
	}

	api, err := httpapi.New(&httpapi.Config{
		NewSession: func(id string) *studio.Session {
			sess, _ := rt.newStudio(id)
			return sess
		},
		Catalog: catalog.Default(),
		Logger:  rt.logger,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
