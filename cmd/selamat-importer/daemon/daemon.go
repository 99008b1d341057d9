// Package daemon provides the selamat-importer application: the long-running event service and the
// one-shot import commands.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/myselamat/selamat-importer/internal/cli"
	"github.com/myselamat/selamat-importer/internal/constants"
	"github.com/myselamat/selamat-importer/internal/ingest"
	"github.com/myselamat/selamat-importer/internal/ingest/dispatcher"
	"github.com/myselamat/selamat-importer/internal/ingest/objectstore"
	"github.com/myselamat/selamat-importer/internal/ingest/processor"
	"github.com/myselamat/selamat-importer/internal/ingest/schema"
	"github.com/myselamat/selamat-importer/internal/ingest/tablestore"
	"github.com/myselamat/selamat-importer/internal/metrics"
	"github.com/myselamat/selamat-importer/internal/webservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Table store backends.
const (
	backendDynamoDB = "dynamodb"
	backendPostgres = "postgres"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *ingest.Service
	events *webservice.Server

	// newStores opens the object and table stores. The returned function releases them.
	newStores   func(ctx context.Context) (objectStore, tableStore, func(), error)
	startLambda func(handler any)

	ready chan struct{}
}

type objectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	ListPage(ctx context.Context, bucket, prefix, token string) (objectstore.Page, error)
}

type tableStore interface {
	Describe(ctx context.Context, table string) error
	Put(ctx context.Context, table string, r schema.Record) error
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	// Schema pins the importer to the documents of a single schema.
	Schema schema.ID
	// Tables overrides the destination table of some schemas, keyed by schema name.
	Tables  map[string]string
	Backend string

	AWS awsConfig
	DB  tablestore.PostgresConfig

	Daemon  webservice.Config
	Metrics metrics.Config

	MigrationsDir string
}

type awsConfig struct {
	Region   string
	S3       objectstore.Config
	DynamoDB tablestore.DynamoDBConfig
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}
	a.newStores = a.openStores
	a.startLambda = startLambda

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "Selamat S3 document importer",
		Long:          "Selamat importer copies the SOS alerts and disaster reports dropped in S3 into their tables, one record per JSON document.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToTimeDurationHookFunc(),
			))); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installLambdaCmd(&a)
	installImportCmd(&a)
	installDispatchCmd(&a)
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Import flags, shared by every command touching the stores.
	cmd.PersistentFlags().String("schema", "", "only import the documents of this schema (sos or report)")
	cmd.PersistentFlags().StringVar(&app.config.Backend, "backend", backendDynamoDB, "table store backend (dynamodb or postgres)")
	cmd.PersistentFlags().StringVar(&app.config.AWS.Region, "aws-region", "", "AWS region, read from the environment if empty")
	cmd.PersistentFlags().StringVar(&app.config.AWS.S3.Endpoint, "s3-endpoint", "", "endpoint of an S3 compatible object store")
	cmd.PersistentFlags().BoolVar(&app.config.AWS.S3.UsePathStyle, "s3-path-style", false, "use path style S3 addressing")
	cmd.PersistentFlags().StringVar(&app.config.AWS.DynamoDB.Endpoint, "dynamodb-endpoint", "", "endpoint of a DynamoDB compatible table store")
	addDBFlags(cmd, &app.config.DB)

	// Event server flags
	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", "", "host to listen on for events")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", constants.DefaultListenPort, "port to listen on for events")
	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", 5*time.Second, "read timeout for the event HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", 5*time.Minute, "write timeout for the event HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", 4*time.Minute, "time allowed to handle a single event")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", 1<<13, "maximum header size in bytes")
	cmd.Flags().IntVar(&app.config.Daemon.MaxEventBytes, "max-event-bytes", constants.DefaultMaxEventBytes, "maximum event size in bytes")

	// Metrics server flags
	cmd.Flags().StringVar(&app.config.Metrics.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Metrics.Port, "metrics-port", constants.DefaultMetricsPort, "port for the metrics endpoint")
	cmd.Flags().DurationVar(&app.config.Metrics.ReadTimeout, "metrics-read-timeout", 5*time.Second, "read timeout for the metrics HTTP server")
	cmd.Flags().DurationVar(&app.config.Metrics.WriteTimeout, "metrics-write-timeout", 10*time.Second, "write timeout for the metrics HTTP server")
}

func addDBFlags(cmd *cobra.Command, config *tablestore.PostgresConfig) {
	cmd.PersistentFlags().StringVar(&config.Host, "db-host", "", "database host")
	cmd.PersistentFlags().IntVarP(&config.Port, "db-port", "p", 5432, "database port")
	cmd.PersistentFlags().StringVarP(&config.User, "db-user", "u", "", "database user")
	cmd.PersistentFlags().StringVarP(&config.Password, "db-password", "P", "", "database password")
	cmd.PersistentFlags().StringVarP(&config.DBName, "db-name", "n", "", "database name")
	cmd.PersistentFlags().StringVarP(&config.SSLMode, "db-sslmode", "s", "", "database SSL mode")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	defer func() {
		// Release Quit and WaitReady if the service could not be built.
		if a.daemon == nil {
			close(a.ready)
		}
	}()

	registry := prometheus.NewRegistry()
	d, release, err := a.newDispatcher(context.Background(), registry)
	if err != nil {
		return err
	}
	defer release()

	a.events, err = webservice.New(a.config.Daemon, d, registry)
	if err != nil {
		return fmt.Errorf("failed to create event server: %v", err)
	}
	metricsServer := metrics.New(a.config.Metrics, registry)

	a.daemon = ingest.New(context.Background(), a.events, metricsServer)
	close(a.ready)

	return a.daemon.Run()
}

// newProcessor opens the stores and builds the processor on top of them.
func (a *App) newProcessor(ctx context.Context, reg prometheus.Registerer) (*processor.Processor, func(), error) {
	targets, err := a.config.tables()
	if err != nil {
		return nil, nil, err
	}

	objects, tables, release, err := a.newStores(ctx)
	if err != nil {
		return nil, nil, err
	}

	proc, err := processor.New(objects, tables, reg,
		processor.WithPinnedSchema(a.config.Schema),
		processor.WithTables(targets))
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to create processor: %v", err)
	}
	return proc, release, nil
}

// newDispatcher builds the event dispatcher and the processor it feeds.
func (a *App) newDispatcher(ctx context.Context, reg prometheus.Registerer) (*dispatcher.Dispatcher, func(), error) {
	proc, release, err := a.newProcessor(ctx, reg)
	if err != nil {
		return nil, nil, err
	}

	d, err := dispatcher.New(proc, reg)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to create dispatcher: %v", err)
	}
	return d, release, nil
}

// openStores connects to S3 and to the configured table store backend.
func (a *App) openStores(ctx context.Context) (objectStore, tableStore, func(), error) {
	if a.config.Backend != backendDynamoDB && a.config.Backend != backendPostgres {
		return nil, nil, nil, fmt.Errorf("unknown table store backend %q", a.config.Backend)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(a.config.AWS.Region))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load AWS configuration: %v", err)
	}
	objects := objectstore.New(awsCfg, a.config.AWS.S3)

	if a.config.Backend == backendDynamoDB {
		return objects, tablestore.NewDynamoDB(awsCfg, a.config.AWS.DynamoDB), func() {}, nil
	}

	db, err := tablestore.NewPostgres(ctx, a.config.DB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	release := func() {
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close database connection", "err", err)
		}
	}
	return objects, db, release, nil
}

// tables returns the destination table overrides, keyed by schema.
func (c appConfig) tables() (map[schema.ID]string, error) {
	targets := make(map[schema.ID]string, len(c.Tables))
	for name, table := range c.Tables {
		var id schema.ID
		if err := id.UnmarshalText([]byte(name)); err != nil || id == schema.Unknown {
			return nil, fmt.Errorf("invalid table configuration: unknown schema %q", name)
		}
		targets[id] = table
	}
	return targets, nil
}
