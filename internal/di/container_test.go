package di

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlib/lumen-server/internal/config"
	"github.com/lumenlib/lumen-server/internal/di/providers"
	"github.com/lumenlib/lumen-server/internal/dispatch"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		App:    config.AppConfig{Environment: "test"},
		Logger: config.LoggerConfig{Level: "error"},
		Data: config.DataConfig{
			BasePath:    dir,
			LibraryList: filepath.Join(dir, "libraries.json"),
		},
		Server: config.ServerConfig{
			Port:         "0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
		},
		Dispatch: config.DispatchConfig{Rate: 10, Burst: 10},
		Plugins:  config.PluginConfig{Default: []string{"search"}},
	}
}

func TestBootstrap(t *testing.T) {
	injector := NewContainer(testConfig(t))
	require.NoError(t, Bootstrap(injector))

	d, err := do.Invoke[*dispatch.Dispatcher](injector)
	require.NoError(t, err)
	assert.Contains(t, d.Routes(), "library.open")

	srv, err := do.Invoke[*providers.HTTPServerHandle](injector)
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler)

	_ = injector.Shutdown()
}
