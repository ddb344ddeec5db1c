package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Sync or scenario failure
	ExitCommandError = 2 // Command error (bad config, missing working file, etc.)
)

// Error codes reported in JSON output.
const (
	ErrCodeConfig     = "E_CONFIG"
	ErrCodeStore      = "E_STORE"
	ErrCodeDocument   = "E_DOCUMENT"
	ErrCodeSync       = "E_SYNC"
	ErrCodeTestFailed = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Render outputs data as JSON, or calls text to print it for humans.
func (f *OutputFormatter) Render(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	return text(f.Writer)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return err
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// writeTable renders rows under header.
func writeTable(w io.Writer, header []string, rows [][]string) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader(header)
	tbl.SetAutoWrapText(false)
	tbl.AppendBulk(rows)
	tbl.Render()
}
