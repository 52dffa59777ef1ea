package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format represents output format
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "wide":
		return FormatWide
	default:
		return FormatTable
	}
}

// Printer handles formatted output
type Printer struct {
	format Format
	writer io.Writer
	noColor bool
}

// NewPrinter creates a new printer
func NewPrinter(format Format) *Printer {
	return &Printer{
		format:  format,
		writer:  os.Stdout,
		noColor: os.Getenv("NO_COLOR") != "",
	}
}

// SetWriter sets the output writer
func (p *Printer) SetWriter(w io.Writer) {
	p.writer = w
}

// Print outputs data in the configured format
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatJSON:
		return p.printJSON(data)
	case FormatYAML:
		return p.printYAML(data)
	default:
		// Table and Wide are handled by specific methods
		return p.printJSON(data)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (p *Printer) printYAML(data interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// Color codes
const (
	Reset     = "\033[0m"
	Bold      = "\033[1m"
	Red       = "\033[31m"
	Green     = "\033[32m"
	Yellow    = "\033[33m"
	Blue      = "\033[34m"
	Magenta   = "\033[35m"
	Cyan      = "\033[36m"
	Gray      = "\033[90m"
)

// Colorize adds color to text
func (p *Printer) Colorize(color, text string) string {
	if p.noColor {
		return text
	}
	return color + text + Reset
}

// TableWriter creates a tabwriter for aligned output
func (p *Printer) TableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
}

// FunctionRow represents a function in table output
type FunctionRow struct {
	ID            string `json:"id" yaml:"id"`
	Project       string `json:"project" yaml:"project"`
	ActiveVersion int    `json:"active_version" yaml:"active_version"`
	Memory        int    `json:"memory_mb" yaml:"memory_mb"`
	Timeout       int    `json:"timeout_ms" yaml:"timeout_ms"`
	Created       string `json:"created" yaml:"created"`
	Updated       string `json:"updated,omitempty" yaml:"updated,omitempty"`
}

// PrintFunctions prints function list
func (p *Printer) PrintFunctions(rows []FunctionRow) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No functions found")
		return nil
	}

	w := p.TableWriter()

	if p.format == FormatWide {
		fmt.Fprintln(w, p.Colorize(Bold, "ID\tPROJECT\tVERSION\tMEMORY\tTIMEOUT\tCREATED\tUPDATED"))
	} else {
		fmt.Fprintln(w, p.Colorize(Bold, "ID\tPROJECT\tMEMORY\tTIMEOUT\tCREATED"))
	}

	for _, row := range rows {
		if p.format == FormatWide {
			fmt.Fprintf(w, "%s\t%s\tv%d\t%dMB\t%dms\t%s\t%s\n",
				p.Colorize(Cyan, row.ID),
				row.Project,
				row.ActiveVersion,
				row.Memory,
				row.Timeout,
				row.Created,
				row.Updated,
			)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%dMB\t%dms\t%s\n",
				p.Colorize(Cyan, row.ID),
				row.Project,
				row.Memory,
				row.Timeout,
				row.Created,
			)
		}
	}

	return w.Flush()
}

// InvokeResult represents invocation result
type InvokeResult struct {
	RequestID  string          `json:"request_id" yaml:"request_id"`
	Success    bool            `json:"success" yaml:"success"`
	Output     json.RawMessage `json:"output,omitempty" yaml:"output,omitempty"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64           `json:"duration_ms" yaml:"duration_ms"`
}

// PrintInvokeResult prints invocation result
func (p *Printer) PrintInvokeResult(result InvokeResult) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(result)
	}

	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Request ID:"), result.RequestID)
	fmt.Fprintf(p.writer, "%s %d ms\n", p.Colorize(Bold, "Duration:"), result.DurationMs)

	if result.Error != "" {
		fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Error:"), p.Colorize(Red, result.Error))
	} else {
		fmt.Fprintf(p.writer, "%s\n", p.Colorize(Bold, "Output:"))
		var prettyOutput interface{}
		if err := json.Unmarshal(result.Output, &prettyOutput); err == nil {
			formatted, _ := json.MarshalIndent(prettyOutput, "", "  ")
			fmt.Fprintln(p.writer, string(formatted))
		} else {
			fmt.Fprintln(p.writer, string(result.Output))
		}
	}

	return nil
}

// FunctionDetail represents detailed function info
type FunctionDetail struct {
	ID            string            `json:"id" yaml:"id"`
	Project       string            `json:"project" yaml:"project"`
	ActiveVersion int               `json:"active_version" yaml:"active_version"`
	PackageDigest string            `json:"package_digest" yaml:"package_digest"`
	PackagePath   string            `json:"package_path" yaml:"package_path"`
	MemoryMB      int               `json:"memory_mb" yaml:"memory_mb"`
	TimeoutMs     int               `json:"timeout_ms" yaml:"timeout_ms"`
	EnvVars       map[string]string `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`
	TrafficSplit  map[int]int       `json:"traffic_split,omitempty" yaml:"traffic_split,omitempty"`
	Created       string            `json:"created" yaml:"created"`
	Updated       string            `json:"updated" yaml:"updated"`
}

// PrintFunctionDetail prints detailed function info
func (p *Printer) PrintFunctionDetail(detail FunctionDetail) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(detail)
	}

	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Function:"), p.Colorize(Cyan, detail.ID))
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Project:"), detail.Project)
	fmt.Fprintf(p.writer, "  %s v%d\n", p.Colorize(Gray, "Active version:"), detail.ActiveVersion)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Package digest:"), detail.PackageDigest)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Package path:"), detail.PackagePath)
	fmt.Fprintf(p.writer, "  %s %d MB\n", p.Colorize(Gray, "Memory:"), detail.MemoryMB)
	fmt.Fprintf(p.writer, "  %s %d ms\n", p.Colorize(Gray, "Timeout:"), detail.TimeoutMs)

	if len(detail.TrafficSplit) > 0 {
		fmt.Fprintf(p.writer, "  %s\n", p.Colorize(Gray, "Traffic split:"))
		for version, pct := range detail.TrafficSplit {
			fmt.Fprintf(p.writer, "    v%d: %d%%\n", version, pct)
		}
	}

	if len(detail.EnvVars) > 0 {
		fmt.Fprintf(p.writer, "  %s\n", p.Colorize(Gray, "Env vars:"))
		for k, v := range detail.EnvVars {
			fmt.Fprintf(p.writer, "    %s=%s\n", k, v)
		}
	}

	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Created:"), detail.Created)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Updated:"), detail.Updated)

	return nil
}

// LogEntry represents a log entry
type LogEntry struct {
	Timestamp  string `json:"timestamp" yaml:"timestamp"`
	RequestID  string `json:"request_id" yaml:"request_id"`
	Function   string `json:"function" yaml:"function"`
	Level      string `json:"level" yaml:"level"`
	Message    string `json:"message" yaml:"message"`
	DurationMs int64  `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// PrintLogEntry prints a single log entry
func (p *Printer) PrintLogEntry(entry LogEntry) error {
	if p.format == FormatJSON {
		return p.printJSON(entry)
	}

	// Colorize level
	levelColor := Gray
	switch strings.ToUpper(entry.Level) {
	case "ERROR", "ERR":
		levelColor = Red
	case "WARN", "WARNING":
		levelColor = Yellow
	case "INFO":
		levelColor = Green
	case "DEBUG":
		levelColor = Gray
	}

	fmt.Fprintf(p.writer, "%s %s %s %s\n",
		p.Colorize(Gray, entry.Timestamp),
		p.Colorize(Cyan, "["+entry.RequestID+"]"),
		p.Colorize(levelColor, entry.Level),
		entry.Message,
	)

	return nil
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Green, "✓ ")+msg)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Red, "✗ ")+msg)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Yellow, "⚠ ")+msg)
}

// Info prints an info message
func (p *Printer) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Blue, "ℹ ")+msg)
}
