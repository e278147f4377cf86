package common

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
)

// Exit codes shared by the tools.
const (
	ExitCommandFailed = 3
	ExitLoadFailed    = 4
)

type CIResult struct {
	OK         bool     `json:"ok"`
	Tool       string   `json:"tool"`
	Title      string   `json:"title"`
	DurationMS int64    `json:"duration_ms"`
	Details    []string `json:"details,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func PrintCIResult(tool, title string, elapsed time.Duration, details []string, err error) {
	writeCIResult(os.Stdout, tool, title, elapsed, details, err)
}

func writeCIResult(w io.Writer, tool, title string, elapsed time.Duration, details []string, err error) {
	result := CIResult{OK: err == nil, Tool: tool, Title: title, DurationMS: elapsed.Milliseconds(), Details: details}
	if err != nil {
		result.Error = err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// Instrument wraps a tool action with run and duration metrics.
func Instrument(tool, command string, fn func(context.Context) ([]string, error)) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		start := time.Now()
		details, err := fn(ctx)
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RecordToolCommandRun(ctx, tool, command, status)
		observability.RecordToolCommandDuration(ctx, tool, command, status, time.Since(start))
		return details, err
	}
}
