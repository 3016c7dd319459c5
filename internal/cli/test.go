package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/roach88/fibdrv/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarizes a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run device scenarios",
		Long: `Run every scenario file under a directory, each against a fresh device.

A scenario passes when every step meets its expect clause and, if
golden/<name>.golden exists beside it, its trace matches that file exactly.

Exit codes:
  0 - every scenario passed
  1 - at least one scenario failed
  2 - the directory or filter is unusable

Examples:
  fibdrv test ./scenarios
  fibdrv test ./scenarios --filter "busy*"
  fibdrv test ./scenarios --update
  fibdrv test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name matches this glob")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	asJSON := opts.Format == "json"
	if len(files) == 0 {
		if asJSON {
			return writeTestJSON(cmd.OutOrStdout(), TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	r := &scenarioRunner{
		update:  opts.Update,
		verbose: opts.Verbose,
		out:     cmd.OutOrStdout(),
		diag:    opts.formatter(cmd).Diag(),
	}
	if asJSON {
		r.out = io.Discard
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, f := range files {
		result.add(r.run(f))
	}

	if asJSON {
		return writeTestJSON(cmd.OutOrStdout(), result)
	}
	return writeTestSummary(cmd.OutOrStdout(), result)
}

// findScenarioFiles returns the .yaml and .yml files under dir whose base
// name matches filter. golden/ directories are not searched.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			ok, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// scenarioRunner runs scenario files and reports each one as it finishes.
type scenarioRunner struct {
	update  bool
	verbose bool
	out     io.Writer // per-scenario lines; io.Discard in JSON mode
	diag    io.Writer
}

func (r *scenarioRunner) run(path string) ScenarioResult {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return r.fail(filepath.Base(path), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return r.fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}
	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		return r.fail(scenario.Name, fmt.Sprintf("failed to marshal trace: %v", err))
	}

	golden := goldenFilePath(path)
	if r.update {
		if err := updateGoldenFile(golden, trace); err != nil {
			return r.fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		if !result.Pass {
			return r.fail(scenario.Name, result.Errors...)
		}
		fmt.Fprintf(r.out, "✓ %s (golden updated)\n", scenario.Name)
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	errs := append([]string(nil), result.Errors...)
	if msg := r.compareGolden(scenario.Name, golden, trace); msg != "" {
		errs = append(errs, msg)
	}
	if len(errs) > 0 {
		return r.fail(scenario.Name, errs...)
	}
	fmt.Fprintf(r.out, "✓ %s\n", scenario.Name)
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// compareGolden returns a failure message, or "" when the golden file
// matches or does not exist.
func (r *scenarioRunner) compareGolden(name, path string, trace []byte) string {
	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	if err != nil {
		return fmt.Sprintf("golden comparison failed: %v", err)
	}
	if bytes.Equal(want, trace) {
		return ""
	}
	if r.verbose {
		fmt.Fprintf(r.diag, "%s golden diff (-want +got):\n%s", name, cmp.Diff(string(want), string(trace)))
	}
	return "trace does not match golden file (run with --update to regenerate)"
}

func (r *scenarioRunner) fail(name string, errs ...string) ScenarioResult {
	fmt.Fprintf(r.out, "✗ %s\n", name)
	for _, e := range errs {
		fmt.Fprintf(r.out, "  %s\n", e)
	}
	return ScenarioResult{Name: name, Errors: errs}
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func updateGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func testFailure(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
}

func writeTestJSON(w io.Writer, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	failure := testFailure(result)
	if failure != nil {
		resp.Status = "error"
		resp.Error = &CLIError{Code: "E_TEST_FAILED", Message: failure.Error()}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return failure
}

func writeTestSummary(w io.Writer, result TestResult) error {
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if err := testFailure(result); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
