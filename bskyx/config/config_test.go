package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/bsky-explainer/bskyx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))

	// Keep the developer's shell from leaking into assertions.
	suite.T().Setenv("OPENAI_API_KEY", "")
	suite.T().Setenv("LLM_API_KEY", "")
	suite.T().Setenv("AGENT_MAX_STEPS", "")
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultModel, cfg.LLM.Model)
	assert.Equal(suite.T(), internal.DefaultBaseURL, cfg.LLM.BaseURL)
	assert.Equal(suite.T(), 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(suite.T(), 5, cfg.Agent.MaxSteps)
	assert.False(suite.T(), cfg.Agent.NativeTools)
	assert.Equal(suite.T(), 5, cfg.Tools.SearchMaxResults)
	assert.Equal(suite.T(), 300, cfg.Tools.VisionMaxTokens)
	assert.Equal(suite.T(), internal.DefaultBlueskyAPIHost, cfg.Tools.BlueskyAPIHost)
	assert.Equal(suite.T(), []string{"gpt-4o", "gpt-4o-mini"}, cfg.Eval.Models)
	assert.Equal(suite.T(), internal.DefaultCasesPath, cfg.Eval.CasesPath)
	assert.Equal(suite.T(), 1, cfg.Eval.Concurrency)
	assert.Empty(suite.T(), cfg.Eval.HistoryDSN)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
llm:
  model: "gpt-4o-mini"
  timeout: "5s"
agent:
  max_steps: 3
  native_tools: true
harness:
  allowed_tools: ["search", "bluesky_fetch"]
eval:
  models: ["gpt-4o-mini"]
  concurrency: 4
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(suite.T(), 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(suite.T(), 3, cfg.Agent.MaxSteps)
	assert.True(suite.T(), cfg.Agent.NativeTools)
	assert.Equal(suite.T(), []string{"search", "bluesky_fetch"}, cfg.Harness.AllowedTools)
	assert.Equal(suite.T(), []string{"gpt-4o-mini"}, cfg.Eval.Models)
	assert.Equal(suite.T(), 4, cfg.Eval.Concurrency)
	// untouched keys keep their defaults
	assert.Equal(suite.T(), 300, cfg.Tools.VisionMaxTokens)
}

func (suite *ConfigTestSuite) TestLoadConfigFromSearchPath() {
	require.NoError(suite.T(), os.WriteFile("config.yaml", []byte("agent:\n  max_steps: 7\n"), 0o644))

	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 7, cfg.Agent.MaxSteps)
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv("OPENAI_API_KEY", "sk-test")
	suite.T().Setenv("AGENT_MAX_STEPS", "2")

	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "sk-test", cfg.LLM.APIKey)
	assert.Equal(suite.T(), 2, cfg.Agent.MaxSteps)
	assert.NoError(suite.T(), cfg.Validate())
}

func (suite *ConfigTestSuite) TestValidateMissingAPIKey() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.ErrorIs(suite.T(), cfg.Validate(), ErrMissingAPIKey)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
agent:
  max_steps: 5
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(malformedContent), 0o644))

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.Agent.MaxSteps, AppConfig.Agent.MaxSteps)
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for b.Loop() {
		cfg, err := LoadConfig("")
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}
