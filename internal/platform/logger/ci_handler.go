package logger

import (
	"io"
	"log/slog"
	"os"
	"sort"
)

// ciRunVars maps run-identifying CI variables to their key in the "ci" group.
var ciRunVars = map[string]string{
	"GITHUB_RUN_ID":      "run_id",
	"GITHUB_SHA":         "commit",
	"CI_PIPELINE_ID":     "run_id",
	"CI_COMMIT_SHA":      "commit",
	"BUILDKITE_BUILD_ID": "run_id",
	"BUILDKITE_COMMIT":   "commit",
}

func isCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" || os.Getenv("GITLAB_CI") != ""
}

func ciProvider() string {
	switch {
	case os.Getenv("GITHUB_ACTIONS") != "":
		return "github"
	case os.Getenv("GITLAB_CI") != "":
		return "gitlab"
	case os.Getenv("BUILDKITE") != "":
		return "buildkite"
	default:
		return "generic"
	}
}

// ciAttrs returns the "ci" group attached to every record of a CI run.
func ciAttrs() slog.Attr {
	envs := make([]string, 0, len(ciRunVars))
	for env := range ciRunVars {
		envs = append(envs, env)
	}
	sort.Strings(envs)

	attrs := []any{slog.String("provider", ciProvider())}
	seen := map[string]bool{}
	for _, env := range envs {
		key := ciRunVars[env]
		if v := os.Getenv(env); v != "" && !seen[key] {
			seen[key] = true
			attrs = append(attrs, slog.String(key, v))
		}
	}
	return slog.Group("ci", attrs...)
}

// NewCIHandler returns a JSON handler whose records carry the CI provider,
// run ID and commit, so dispatcher logs from test runs can be traced back to
// the pipeline that produced them.
func NewCIHandler(out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(out, opts).WithAttrs([]slog.Attr{ciAttrs()})
}
