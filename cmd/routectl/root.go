package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/routebook/internal/route/catalog"
	"github.com/example/routebook/internal/route/domain"
	"github.com/example/routebook/internal/route/likes"
	"github.com/example/routebook/internal/route/sheet"
	"github.com/example/routebook/internal/route/votes"
	"github.com/example/routebook/pkg/observability"
)

const clientIDKey = "client-id"

type options struct {
	dbPath      string
	catalogFile string
	sheetURL    string
	timeout     time.Duration
	verbose     bool
	jsonOut     bool
}

// app is the per-invocation state shared by every subcommand.
type app struct {
	catalog  *catalog.Catalog
	likes    *likes.Service
	store    *votes.SQLite
	clientID string
	out      io.Writer
	errOut   io.Writer
	jsonOut  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	var a *app

	root := &cobra.Command{
		Use:           "routectl",
		Short:         "Browse the route catalog and like routes from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.store.Close()
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", defaultDBPath(), "local profile database holding vote flags and cached counts")
	root.PersistentFlags().StringVar(&opts.catalogFile, "catalog", os.Getenv("CATALOG_FILE"), "YAML catalog file (built-in routes when empty)")
	root.PersistentFlags().StringVar(&opts.sheetURL, "sheet-url", os.Getenv("SHEET_API_URL"), "base URL of the remote like store")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "remote like store request timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")

	current := func() *app { return a }
	root.AddCommand(newListCmd(current), newShowCmd(current), newLikeCmd(current))
	return root
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "routebook-votes.db"
	}
	return filepath.Join(home, ".routebook", "votes.db")
}

func openApp(ctx context.Context, opts *options, out, errOut io.Writer) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := zap.NewNop()
	if opts.verbose {
		logger = observability.SetupLogger("routectl")
	}

	cat, err := catalog.LoadFile(opts.catalogFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	store, err := votes.OpenSQLite(ctx, opts.dbPath)
	if err != nil {
		return nil, err
	}
	clientID, err := profileID(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var remote domain.RemoteLikeStore = sheet.Nop{}
	if opts.sheetURL != "" {
		remote = sheet.NewClient(opts.sheetURL, nil, opts.timeout)
	}

	svc := likes.New(cat, remote, store, store, nil, domain.SystemClock{}, logger)
	svc.WarmFromCache(ctx)
	svc.SyncFromRemote(ctx)

	return &app{
		catalog:  cat,
		likes:    svc,
		store:    store,
		clientID: clientID,
		out:      out,
		errOut:   errOut,
		jsonOut:  opts.jsonOut,
	}, nil
}

// profileID returns the stable identity of this profile, creating it on first use.
func profileID(ctx context.Context, store domain.KeyValueStore) (string, error) {
	if _, err := store.SetIfAbsent(ctx, clientIDKey, uuid.NewString()); err != nil {
		return "", err
	}
	id, _, err := store.Get(ctx, clientIDKey)
	return id, err
}
