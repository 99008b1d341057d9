package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig   = appConfig
	AWSConfig   = awsConfig
	ObjectStore = objectStore
	TableStore  = tableStore
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// NewForTests creates a new App instance reading from objects and writing to tables.
// The event and metrics servers listen on random local ports.
func NewForTests(t *testing.T, conf *AppConfig, objects ObjectStore, tables TableStore, args ...string) *App {
	t.Helper()

	if conf == nil {
		conf = &AppConfig{}
	}
	if conf.Backend == "" {
		conf.Backend = backendDynamoDB
	}
	if conf.Daemon.ListenHost == "" {
		conf.Daemon.ListenHost = "127.0.0.1"
	}
	if conf.Daemon.RequestTimeout == 0 {
		conf.Daemon.RequestTimeout = 5 * time.Second
	}
	if conf.Daemon.MaxEventBytes == 0 {
		conf.Daemon.MaxEventBytes = 1 << 16
	}
	if conf.Metrics.Host == "" {
		conf.Metrics.Host = "127.0.0.1"
	}

	p := GenerateTestConfig(t, conf)

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")
	a.newStores = func(context.Context) (objectStore, tableStore, func(), error) {
		return objects, tables, func() {}, nil
	}
	a.cmd.SetArgs(append(args, "--config", p))
	return a
}

// GenerateTestConfig generates a temporary config file for testing.
func GenerateTestConfig(t *testing.T, origConf *AppConfig) string {
	t.Helper()

	var conf appConfig

	if origConf != nil {
		conf = *origConf
	}

	if conf.Verbosity == 0 {
		conf.Verbosity = 2
	}

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}

// SetIO replaces the standard input and output of the commands.
func (a *App) SetIO(in io.Reader, out io.Writer) {
	a.cmd.SetIn(in)
	a.cmd.SetOut(out)
}

// SetLambdaStarter replaces the Lambda runtime.
func (a *App) SetLambdaStarter(start func(handler any)) {
	a.startLambda = start
}

// EventsAddr returns the address of the event server, once the daemon is ready.
func (a *App) EventsAddr() string {
	if a.events == nil {
		return ""
	}
	return a.events.Addr()
}
