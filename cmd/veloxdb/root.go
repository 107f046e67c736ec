package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/config"
	"github.com/syssam/veloxdb/dialect/sql"
	"github.com/syssam/veloxdb/graph"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
	"github.com/syssam/veloxdb/storage/bolt"
	"github.com/syssam/veloxdb/storage/memory"
	"github.com/syssam/veloxdb/storage/sqlstore"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	configPath string
	root       bool
	user       string
	role       string

	out   io.Writer
	log   zerolog.Logger
	ctrl  *graph.Controller
	stats *sql.StatsDriver
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	a := &app{out: stdout}
	defer func() {
		err = errors.Join(err, a.close())
	}()
	cmd := newRootCmd(a, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(a *app, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "veloxdb",
		Short:         "Read and write the objects of a veloxdb store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			if a.root && a.user != "" {
				return errors.New("--root and --user are exclusive")
			}
			if a.role != "" && a.user == "" {
				return errors.New("--role needs --user")
			}
			return a.open(cmd.Context(), stderr)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetOut(a.out)
	cmd.SetErr(stderr)
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "veloxdb.yaml", "Path to the configuration file")
	flags.BoolVar(&a.root, "root", false, "Run with root access")
	flags.StringVar(&a.user, "user", "", "Run as the user with this id")
	flags.StringVar(&a.role, "role", "", "Role of the user")
	cmd.AddCommand(
		newGetCmd(a),
		newListCmd(a),
		newCountCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newInitCmd(a),
		newClearCmd(a),
	)
	return cmd
}

// open loads the configuration and the schema and connects the controller.
func (a *app) open(ctx context.Context, stderr io.Writer) error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return err
	}
	if cfg.Schema == "" {
		return fmt.Errorf("%s: schema is required", a.configPath)
	}
	sch, err := schema.LoadFile(cfg.Schema)
	if err != nil {
		return err
	}
	a.log = cfg.Logger(stderr)
	adapter, err := a.openAdapter(cfg)
	if err != nil {
		return err
	}
	ctrl := graph.New(adapter, sch,
		graph.WithLogger(a.log),
		graph.WithConcurrency(cfg.Concurrency),
	)
	if err := ctrl.Connect(ctx); err != nil {
		return errors.Join(err, adapter.Close())
	}
	a.ctrl = ctrl
	return nil
}

func (a *app) close() error {
	if a.ctrl == nil {
		return nil
	}
	err := a.ctrl.Close()
	a.ctrl = nil
	if a.stats != nil {
		a.log.Debug().Object("statements", a.stats.Stats()).Msg("storage closed")
	}
	return err
}

// context returns the context carrying the caller selected by the flags.
func (a *app) context(ctx context.Context) context.Context {
	switch {
	case a.root:
		return veloxdb.RootContext(ctx)
	case a.user != "":
		return veloxdb.UserContext(ctx, a.user, a.role)
	}
	return ctx
}

// openAdapter returns the storage adapter the configuration names. SQL
// drivers count statements and log slow ones. At debug level every
// statement is logged.
func (a *app) openAdapter(cfg *config.Config) (storage.Adapter, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverBolt:
		return bolt.New(cfg.Storage.Path), nil
	}
	var opts []sql.StatsOption
	if cfg.Log.SlowQuery > 0 {
		opts = append(opts, sql.WithSlowThreshold(cfg.Log.SlowQuery), sql.WithSlowQueryLog(a.log))
	}
	drv, err := sql.OpenWithStats(cfg.Storage.Driver, cfg.Storage.DSN, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Storage.Driver, err)
	}
	a.stats = drv
	if a.log.GetLevel() <= zerolog.DebugLevel {
		return sqlstore.New(sql.Debug(drv, a.log)), nil
	}
	return sqlstore.New(drv), nil
}
