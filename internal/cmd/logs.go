package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/autoproducer/internal/config"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/util"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View daemon logs",
	Long: `View and filter the daemon's log file at {logging.dir}/autoproducer.log.

Examples:
  # Show the last 50 records
  autoproducer logs

  # Show everything logged for one run
  autoproducer logs --run 0b9f6a2c -n 0

  # Follow logs in real time
  autoproducer logs -f

  # Only warnings and errors from the last hour
  autoproducer logs --level warn --since 1h

  # Search messages and fields
  autoproducer logs --grep "timed out|stub"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsRun    string
	logsStage  string
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsRun, "run", "", "Only records of runs whose ID starts with this prefix")
	logsCmd.Flags().StringVar(&logsStage, "stage", "", "Only records of this stage")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of records to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show records since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter records matching pattern (regex)")
}

// logEntry is one parsed JSON log record.
type logEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Msg       string         `json:"msg"`
	RunID     string         `json:"run_id,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Component string         `json:"component,omitempty"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON keeps fields without a struct field in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "run_id", "stage", "component"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter selects log records.
type logFilter struct {
	minLevel int
	since    time.Time
	runID    string
	stage    string
	grep     *regexp.Regexp
}

func newLogFilter(level, since, runID, stageName, grep string, now time.Time) (logFilter, error) {
	f := logFilter{minLevel: -1, runID: runID, stage: stageName}
	if level != "" {
		f.minLevel = levelPriority(logging.ParseLevel(level))
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = now.Add(-d)
	}
	if grep != "" {
		re, err := regexp.Compile(grep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

func (f logFilter) matches(e *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(e.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && e.Time.Before(f.since) {
		return false
	}
	if f.runID != "" && !strings.HasPrefix(e.RunID, f.runID) {
		return false
	}
	if f.stage != "" && e.Stage != f.stage {
		return false
	}
	if f.grep != nil {
		text := e.Msg
		for _, v := range e.Extra {
			text += " " + fmt.Sprint(v)
		}
		if !f.grep.MatchString(text) {
			return false
		}
	}
	return true
}

func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelInfo:
		return lipgloss.NewStyle().Foreground(pausedColor)
	case logging.LevelWarn:
		return lipgloss.NewStyle().Foreground(warningColor)
	case logging.LevelError:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		return labelStyle
	}
}

var fieldStyle = lipgloss.NewStyle().Foreground(primaryColor)

// formatLogEntry renders a record on one line. Extra fields are sorted.
func formatLogEntry(e *logEntry) string {
	var sb strings.Builder
	sb.WriteString(labelStyle.Render("[" + e.Time.Local().Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(levelStyle(e.Level).Render(util.Column(strings.ToUpper(e.Level), 5)))
	sb.WriteString(" ")
	sb.WriteString(e.Msg)

	if e.RunID != "" {
		sb.WriteString(" " + fieldStyle.Render("run="+util.ShortID(e.RunID)))
	}
	if e.Stage != "" {
		sb.WriteString(" " + fieldStyle.Render("stage="+e.Stage))
	}

	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" " + fieldStyle.Render(k+"=") + fmt.Sprint(e.Extra[k]))
	}
	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir := config.ResolveDir(cfg.Logging.Dir)
	if dir == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "logging.dir is not set; the daemon logs to stderr.")
		return nil
	}
	logPath := filepath.Join(dir, logging.LogFileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "No logs found at %s\n", logPath)
		return nil
	}

	filter, err := newLogFilter(logsLevel, logsSince, logsRun, logsStage, logsGrep, time.Now())
	if err != nil {
		return err
	}
	if logsFollow {
		return followLogs(cmd.Context(), cmd.OutOrStdout(), logPath, filter)
	}
	return displayLogs(cmd.OutOrStdout(), logPath, logsTail, filter)
}

// displayLogs prints the last tail matching records of the log file.
func displayLogs(w io.Writer, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line, ok := renderLogLine(scanner.Text(), filter); ok {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if len(lines) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
	}
	return nil
}

// followLogs prints records appended to the log file until ctx is done.
func followLogs(ctx context.Context, w io.Writer, logPath string, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	fmt.Fprintf(w, "Following %s... (Ctrl+C to stop)\n\n", logPath)

	reader := bufio.NewReader(file)
	var partial string
	for {
		chunk, err := reader.ReadString('\n')
		partial += chunk
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}
		if line, ok := renderLogLine(partial, filter); ok {
			fmt.Fprintln(w, line)
		}
		partial = ""
	}
}

// renderLogLine formats a raw line if it passes the filter. Lines that are
// not JSON records are passed through unfiltered.
func renderLogLine(raw string, filter logFilter) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	var entry logEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return raw, true
	}
	if !filter.matches(&entry) {
		return "", false
	}
	return formatLogEntry(&entry), true
}
