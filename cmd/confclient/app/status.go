package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"golang.org/x/term"

	"github.com/stacklok/globalconf-client/internal/config"
	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/httpclient"
	"github.com/stacklok/globalconf-client/internal/status"
	"github.com/stacklok/globalconf-client/internal/versions"
)

const statusRequestTimeout = 10 * time.Second

const (
	formatJSON  = "json"
	formatTable = "table"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the diagnostics status of a running daemon",
		Long: `Print the diagnostics status reported by a running daemon. The process exits with the
status return code, 0 when the last run succeeded.

Without --format the status is printed as a table on a terminal and as JSON otherwise.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cmd.Flags().String("address", config.DefaultAdminAddress, "Admin API address of the daemon")
	cmd.Flags().String("format", "", "Output format: json or table")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format == "" {
		format = defaultFormat(out)
	}
	if format != formatJSON && format != formatTable {
		return fmt.Errorf("unsupported format %q, use %q or %q", format, formatJSON, formatTable)
	}

	baseURL := address
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	ctx, cancel := context.WithTimeout(cmd.Context(), statusRequestTimeout)
	defer cancel()
	client := httpclient.NewDefaultClient(statusRequestTimeout)

	warnIfDaemonNewer(ctx, client, baseURL)

	body, err := client.Get(ctx, baseURL+"/status")
	if err != nil {
		return fmt.Errorf("failed to query daemon status: %w", err)
	}
	var st status.DiagnosticsStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("failed to decode daemon status: %w", err)
	}

	if format == formatTable {
		err = renderStatusTable(out, &st)
	} else {
		err = renderStatusJSON(out, &st)
	}
	if err != nil {
		return fmt.Errorf("failed to print status: %w", err)
	}

	if st.ReturnCode != globalconf.ErrorCodeOK {
		return &ExitError{Code: st.ReturnCode, Err: fmt.Errorf("daemon reports: %s", st.Description)}
	}
	return nil
}

// defaultFormat picks the table for an interactive terminal
func defaultFormat(out io.Writer) string {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return formatTable
	}
	return formatJSON
}

func renderStatusJSON(out io.Writer, st *status.DiagnosticsStatus) error {
	output, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(output))
	return err
}

func renderStatusTable(out io.Writer, st *status.DiagnosticsStatus) error {
	table := tablewriter.NewWriter(out)
	table.Header("Field", "Value")

	rows := [][]string{
		{"Return code", strconv.Itoa(st.ReturnCode)},
		{"Description", st.Description},
		{"Phase", string(st.Phase)},
		{"Instance", st.InstanceIdentifier},
		{"Run", st.RunID},
		{"Previous update", formatTime(st.PrevUpdate)},
		{"Next update", formatTime(st.NextUpdate)},
		{"Last success", formatTime(st.LastSuccess)},
		{"Failed runs", strconv.Itoa(st.AttemptCount)},
		{"Failed partners", strings.Join(st.FailedPartners, ", ")},
	}
	for _, row := range rows {
		if err := table.Append(row[0], row[1]); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

// warnIfDaemonNewer logs a warning when the daemon runs a newer release than this binary
func warnIfDaemonNewer(ctx context.Context, client httpclient.Client, baseURL string) {
	body, err := client.Get(ctx, baseURL+"/version")
	if err != nil {
		slog.Debug("Failed to query daemon version", "error", err)
		return
	}
	if !gjson.ValidBytes(body) {
		slog.Debug("Daemon returned an invalid version document")
		return
	}

	daemonVersion := gjson.GetBytes(body, "version").String()
	local := versions.GetVersionInfo()
	if versions.IsNewerVersion(daemonVersion, local.Version) {
		slog.Warn("Daemon runs a newer version than this command",
			"daemon_version", daemonVersion,
			"cli_version", local.Version)
	}
}
