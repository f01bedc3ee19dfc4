package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"commesse/internal/core/apperror"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // engine refused the operation (duplicate, busy, exhausted)
	ExitCommandError = 2 // bad arguments or configuration
)

// ExitError carries an exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// GetExitCode extracts the exit code from an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		switch appErr.Code {
		case apperror.CodeInvalidInput, apperror.CodeValidation, apperror.CodeConfigurationMissing:
			return ExitCommandError
		}
	}
	return ExitFailure
}

// Response is the JSON envelope written with --format json.
type Response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command.
type ResponseError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OutputFormatter handles JSON vs text output.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Success writes data as JSON, or text for humans.
func (f *OutputFormatter) Success(text string, data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error writes err and returns it so the command fails with the right exit code.
func (f *OutputFormatter) Error(err error) error {
	resp := ResponseError{Code: apperror.CodeInternal, Message: err.Error()}
	if appErr, ok := apperror.AsAppError(err); ok {
		resp = ResponseError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	}
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(Response{Status: "error", Error: &resp})
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", resp.Code, resp.Message)
	}
	return err
}
