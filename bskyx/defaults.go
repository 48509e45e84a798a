package bskyx

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName = "bskyx"

	// DefaultModel drives both the agent and the judge unless overridden.
	DefaultModel       = "gpt-4o"
	DefaultJudgeModel  = "gpt-4o"
	DefaultVisionModel = "gpt-4o"
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultAPIKeyEnv   = "OPENAI_API_KEY"

	DefaultMaxSteps = 5

	DefaultSearchBaseURL  = "https://html.duckduckgo.com"
	DefaultBlueskyAPIHost = "https://public.api.bsky.app"

	DefaultCasesPath   = "eval/cases.json"
	DefaultResultsPath = "eval/benchmark_results.json"
	DefaultReportPath  = "eval/benchmark_report.md"
)

var (
	DefaultConfigPath = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultCacheDir   = filepath.Join(userCacheDir(), DefaultAppName)
	// DefaultHistoryDSN is only used when the eval history store is switched on.
	DefaultHistoryDSN = "file:" + filepath.Join(DefaultCacheDir, "history.db")

	DefaultBenchmarkModels = []string{"gpt-4o", "gpt-4o-mini"}
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	return os.TempDir()
}
