package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/ui"
)

func printerFor(cmd *cobra.Command) *ui.Printer {
	return ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime accepts RFC 3339 timestamps or bare dates (midnight UTC).
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// openInput opens path for reading, or stdin when path is "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

// readOverrides decodes a phase override file. An empty path means none.
func readOverrides(cmd *cobra.Command, path string) (phase.Overrides, error) {
	if path == "" {
		return nil, nil
	}
	f, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return phase.DecodeOverrides(f)
}
