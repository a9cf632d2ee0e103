package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/gvmscan/internal/errors"
	"github.com/anstrom/gvmscan/internal/orchestrator"
)

// Output formats.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var outputFormat = outputText

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputText, "output format: text, json, yaml")
}

// printResult writes v in the selected output format. text renders the
// human-readable form.
func printResult(w io.Writer, v any, text func(w io.Writer)) error {
	switch outputFormat {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return enc.Encode(v)
	case outputText, "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

func printScanResult(w io.Writer, result *orchestrator.ScanResult) {
	fmt.Fprintf(w, "Task:     %s\n", result.TaskID)
	fmt.Fprintf(w, "Status:   %s\n", result.Status)
	if result.ReportID != "" {
		fmt.Fprintf(w, "Report:   %s\n", result.ReportID)
	}
	if result.Target != "" {
		created := "reused"
		if result.TargetCreated {
			created = "created"
		}
		fmt.Fprintf(w, "Target:   %s (%s, %s)\n", result.Target, result.TargetID, created)
	}
	if result.ScannerID != "" {
		fmt.Fprintf(w, "Scanner:  %s\n", result.ScannerID)
	}
}

func printStatus(w io.Writer, result *orchestrator.StatusResult) {
	fmt.Fprintf(w, "Task %s: %s", result.TaskID, result.Status)
	if result.Progress != "" {
		fmt.Fprintf(w, " (%s%%)", result.Progress)
	}
	fmt.Fprintln(w)
}

// printFindings renders findings as a table.
func printFindings(w io.Writer, result *orchestrator.FindingsResult) {
	if len(result.Findings) == 0 {
		fmt.Fprintf(w, "No findings for task %s (status %s)\n", result.TaskID, result.Status)
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Name", "Severity", "OID")
	for i, f := range result.Findings {
		_ = table.Append([]string{fmt.Sprintf("%d", i+1), f.Name, f.Severity, f.OID})
	}
	_ = table.Render()

	fmt.Fprintf(w, "%d finding(s) for task %s\n", len(result.Findings), result.TaskID)
}

// describeError adds a retry hint when a task was created but did not start.
func describeError(err error) error {
	se, ok := errors.AsScanError(err)
	if !ok || se.Operation != errors.StepStartTask || se.TaskID == "" {
		return err
	}
	return fmt.Errorf("%w\nthe task exists on the engine; retry with: gvmscan scan retry %s", err, se.TaskID)
}
