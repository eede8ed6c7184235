package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/config"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/illmade-knight/go-alertstream/pkg/ztf"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("project", "", "")
	fs.String("subscription", "", "")
	fs.Int("max-results", 0, "")
	fs.Duration("timeout", 0, "")
	fs.StringSlice("sink", nil, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1000, cfg.Stop.MaxBacklog)
	assert.Equal(t, "auto", cfg.Decoder.Format)
	assert.Equal(t, []string{config.SinkMemory}, cfg.Sink.Types)
	assert.Equal(t, 24*time.Hour, cfg.Sink.Redis.TTL)
	assert.Nil(t, cfg.Filter.ClassStarThreshold)
	assert.Equal(t, "metadata", cfg.MetadataKey)
}

func TestLoad_Precedence(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "alertstream.yaml")
	yaml := `
project_id: file-project
subscription:
  name: ztf-loop
stop:
  max_results: 5
  timeout: 30s
lighten: true
filter:
  classtar_threshold: 0.5
  classtar_gt_lt: gt
sink:
  types: [memory, redis]
  redis:
    addr: redis:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("ALERTSTREAM_STOP_TIMEOUT", "45s")
	t.Setenv("ALERTSTREAM_SUBSCRIPTION_NAME", "from-env")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--subscription", "from-flag"}))

	// Act
	cfg, err := config.Load(fs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "file-project", cfg.ProjectID)
	assert.Equal(t, "from-flag", cfg.Subscription.Name, "an explicit flag beats env and file")
	assert.Equal(t, 45*time.Second, cfg.Stop.Timeout, "env beats file")
	assert.Equal(t, 5, cfg.Stop.MaxResults)
	assert.Equal(t, []string{"memory", "redis"}, cfg.Sink.Types)
	assert.Equal(t, "redis:6379", cfg.Sink.Redis.Addr)
	require.NotNil(t, cfg.Filter.ClassStarThreshold)
	assert.Equal(t, 0.5, *cfg.Filter.ClassStarThreshold)
	assert.Equal(t, ztf.GreaterThan, cfg.Filter.Comparison)
	assert.Equal(t, ztf.LightFields(), cfg.FieldSpec())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))

	_, err := config.Load(fs)

	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestStopRaw(t *testing.T) {
	cfg := &config.Config{}
	raw := cfg.StopRaw()
	assert.Nil(t, raw.MaxResults)
	assert.Nil(t, raw.IdleTimeout)
	assert.Nil(t, raw.MaxBacklog)

	cfg.Stop.MaxResults = 10
	cfg.Stop.Timeout = time.Minute
	cfg.Stop.MaxBacklog = -1
	raw = cfg.StopRaw()
	assert.Equal(t, 10, *raw.MaxResults)
	assert.Equal(t, time.Minute, *raw.IdleTimeout)
	assert.Equal(t, -1, *raw.MaxBacklog)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.Load(nil)
		require.NoError(t, err)
		cfg.ProjectID = "p"
		cfg.Subscription.Name = "ztf-loop"
		cfg.Stop.MaxResults = 10
		return cfg
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no project", func(c *config.Config) { c.ProjectID = "" }},
		{"no subscription", func(c *config.Config) { c.Subscription.Name = "" }},
		{"no stopping condition", func(c *config.Config) { c.Stop.MaxResults = 0 }},
		{"bad backlog", func(c *config.Config) { c.Stop.MaxBacklog = -5 }},
		{"unknown sink", func(c *config.Config) { c.Sink.Types = []string{"kafka"} }},
		{"unknown credentials", func(c *config.Config) { c.Credentials.Mode = "oauth" }},
		{"bad comparison", func(c *config.Config) {
			th := 0.5
			c.Filter.ClassStarThreshold = &th
			c.Filter.Comparison = "eq"
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), types.ErrConfiguration)
		})
	}
}

func TestTopic(t *testing.T) {
	cfg := &config.Config{}
	cfg.Subscription.Name = "ztf-loop"
	assert.Equal(t, "projects/ardent-cycling-243415/topics/ztf-loop", cfg.Topic().Path())

	cfg.Subscription.TopicProject = "mine"
	cfg.Subscription.Topic = "other"
	assert.Equal(t, "projects/mine/topics/other", cfg.Topic().Path())
}
