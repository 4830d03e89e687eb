package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/config"
	"github.com/untoldecay/cokedb/kv"
	"github.com/untoldecay/cokedb/logging"
	"github.com/untoldecay/cokedb/mvcc"
	"github.com/untoldecay/cokedb/session"
)

// jsonOutput is the global --json flag: machine-readable output for exec
// and status, off by default for the REPL.
var jsonOutput bool

// storageFlag and dataFileFlag let a flag override the discovered config
// (a flag wins over config.Load's env > config file > default order),
// mainly so repeated `cokedb exec` invocations in one shell session or
// script can share on-disk state without writing a .cokedb/config.yaml.
var storageFlag string
var dataFileFlag string

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "cokedb",
	Short:         "CokeDB: an embeddable relational query/transaction engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if storageFlag != "" {
			loaded.Storage = storageFlag
		}
		if dataFileFlag != "" {
			loaded.DataFile = dataFileFlag
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&storageFlag, "storage", "", "ordered KV backend: memory or sqlite (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dataFileFlag, "data-file", "", "sqlite backend file path (overrides config)")
	rootCmd.AddCommand(versionCmd, execCmd, replCmd)
}

// openSession builds the storage backend cfg selects, applies any
// schema-bootstrap file, and returns a ready session.Session. Callers own
// the returned closer and must call it to release the KV backend (the
// sqlite backend holds a gofrs/flock advisory lock until then).
func openSession() (*session.Session, func() error, error) {
	log := logging.New(logging.Options{File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSize})

	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	engine := mvcc.New(store)
	sess := session.New(engine, nil, log)

	if cfg.SchemaFile != "" {
		if err := bootstrapSchema(sess, cfg.SchemaFile); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	return sess, store.Close, nil
}

func openStore() (kv.Store, error) {
	switch cfg.Storage {
	case "", "memory":
		return kv.NewMemoryStore(), nil
	case "sqlite":
		if cfg.DataFile == "" {
			return nil, fmt.Errorf("config: storage=sqlite requires data-file")
		}
		return kv.OpenFile(cfg.DataFile)
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", cfg.Storage)
	}
}

// bootstrapSchema runs LoadSchemaFile inside its own explicit transaction,
// since catalog.LoadSchemaFile takes a *catalog.Catalog, not a *Session.
// It does nothing when the catalog already holds a table.
func bootstrapSchema(sess *session.Session, path string) error {
	ctx := cmdContext()
	if _, err := sess.Begin(ctx); err != nil {
		return err
	}
	// Session has no direct catalog accessor by design (statements always
	// go through Query); CREATE TABLE via the SQL path can't express
	// defaults sourced from arbitrary TOML literals, so bootstrapSchema
	// is the one caller allowed to reach past the façade. It shares the
	// façade's open transaction rather than opening a second one.
	txn, err := sess.CatalogTxn()
	if err != nil {
		sess.Rollback(ctx)
		return err
	}
	cat := catalog.New(txn)
	names, err := cat.ListTables(ctx)
	if err != nil {
		sess.Rollback(ctx)
		return err
	}
	if len(names) > 0 {
		_, err = sess.Rollback(ctx)
		return err
	}
	if err := catalog.LoadSchemaFile(ctx, cat, path); err != nil {
		sess.Rollback(ctx)
		return err
	}
	_, err = sess.Commit(ctx)
	return err
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// cmdContext is the background context every CLI command runs under;
// runREPL uses its own context instead, cancelled by a SIGINT that arrives
// while no transaction is open.
func cmdContext() context.Context {
	return context.Background()
}
