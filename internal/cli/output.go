package cli

import (
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (failed write, scenario failed, item not found)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, database not openable)
)

// Error codes reported in JSON error responses.
const (
	CodeNotFound         = "E_NOT_FOUND"
	CodeWriteFailed      = "E_WRITE_FAILED"
	CodeLoadFailed       = "E_LOAD_FAILED"
	CodeBadInput         = "E_BAD_INPUT"
	CodeStoreUnavailable = "E_STORE_UNAVAILABLE"
	CodeScenarioFailed   = "E_SCENARIO_FAILED"
	CodeCommand          = "E_COMMAND"
	CodeFailed           = "E_FAILED"
)

// ExitError is a command failure with a process exit code and an error
// code for machine-readable output.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Kind    string // one of the Code* constants; derived from Code when empty
	Message string
	Details any   // extra context for JSON output
	Err     error // underlying error (optional)

	reported bool
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

// WithKind sets the error code and returns e.
func (e *ExitError) WithKind(kind string) *ExitError {
	e.Kind = kind
	return e
}

// WithDetails attaches context for JSON output and returns e.
func (e *ExitError) WithDetails(details any) *ExitError {
	e.Details = details
	return e
}

func (e *ExitError) kind() string {
	switch {
	case e.Kind != "":
		return e.Kind
	case e.Code == ExitCommandError:
		return CodeCommand
	}
	return CodeFailed
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

// Reported reports whether err was already written by an OutputFormatter,
// so the caller should not print it again.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// OutputFormatter writes command results in text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics and text-mode errors; defaults to Writer
	Verbose   bool
}

// Response is the JSON envelope of every command result.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command in a Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data: the JSON envelope, or data itself as a text line.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error writes a failure. JSON goes to Writer so scripts read one stream;
// text goes to ErrWriter, with details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}

	w := f.errWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// Fail writes err through Error and returns it marked as reported. Errors
// that are not ExitErrors become ExitFailure. A nil err stays nil.
func (f *OutputFormatter) Fail(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitFailure, "command failed", err)
	}
	if exitErr.reported {
		return exitErr
	}
	if werr := f.Error(exitErr.kind(), exitErr.Error(), exitErr.Details); werr != nil {
		return errors.Join(exitErr, werr)
	}
	exitErr.reported = true
	return exitErr
}

// VerboseLog writes a diagnostic line to ErrWriter when verbose, keeping
// JSON on Writer intact.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
