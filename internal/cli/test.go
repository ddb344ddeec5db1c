package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/minisync/internal/harness"
	"github.com/roach88/minisync/internal/index"
)

// TestOptions configures a run of the sync scenario suite.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult is the data payload of `minisync test --format json`.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run sync scenarios",
		Long: `Run YAML sync scenarios against fresh in-memory stores.

A scenario with a golden file at golden/<file name>.golden next to it must
also reproduce that trace exactly.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  minisync test ./scenarios
  minisync test ./scenarios --filter "restore*"
  minisync test ./scenarios --update
  minisync test two_users.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	var scenarioFiles []string
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", p))
		}
		files, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		scenarioFiles = append(scenarioFiles, files...)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	if len(scenarioFiles) == 0 && opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, opts, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)
		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles returns path itself, or all YAML files below it when
// it is a directory. Golden directories are skipped.
func findScenarioFiles(path string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return errors.Wrap(err, "invalid filter pattern")
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})

	return files, err
}

// runScenario replays one scenario against in-memory stores and checks its
// trace against the golden file next to it, if there is one.
func runScenario(scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"
	fail := func(name string, errs ...string) ScenarioResult {
		if text {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := harness.Run(commandContext(cmd), scenario)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := updateGoldenFile(scenario, result, goldenPath); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
	} else if _, err := os.Stat(goldenPath); err == nil {
		match, err := compareWithGolden(scenario, result, goldenPath)
		if err != nil {
			return fail(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
		}
		if !match {
			return fail(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
		}
	}

	if !result.Pass {
		return fail(scenario.Name, result.Errors...)
	}
	if text {
		suffix := ""
		if opts.Update {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "✓ %s%s\n", scenario.Name, suffix)
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func traceSnapshot(scenario *harness.Scenario, result *harness.Result) ([]byte, error) {
	return index.MarshalCanonical(harness.TraceSnapshot{
		ScenarioName: scenario.Name,
		Trace:        result.Trace,
	})
}

func updateGoldenFile(scenario *harness.Scenario, result *harness.Result, goldenPath string) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return errors.Wrap(err, "create golden directory")
	}
	data, err := traceSnapshot(scenario, result)
	if err != nil {
		return errors.Wrap(err, "marshal trace")
	}
	return errors.Wrap(os.WriteFile(goldenPath, data, 0644), "write golden file")
}

// compareWithGolden reports whether the canonical trace matches goldenPath
// byte for byte.
func compareWithGolden(scenario *harness.Scenario, result *harness.Result, goldenPath string) (bool, error) {
	golden, err := os.ReadFile(goldenPath)
	if err != nil {
		return false, errors.Wrap(err, "read golden file")
	}
	current, err := traceSnapshot(scenario, result)
	if err != nil {
		return false, errors.Wrap(err, "marshal current trace")
	}
	return bytes.Equal(golden, current), nil
}

// outputTestJSON fails with ExitFailure after printing when any scenario failed.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
