package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"co2load/internal/co2"
	"co2load/internal/parser/csv"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to the user but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path names the option
// (e.g. "connection.host", "import.budget_rows").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Issues is the aggregated result of Validate. As an error it reports only
// the blocking issues, one per line.
type Issues []Issue

func (is Issues) Error() string {
	var b strings.Builder
	n := 0
	for _, i := range is {
		if i.Severity != SeverityError {
			continue
		}
		if n > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(i.Error())
		n++
	}
	return fmt.Sprintf("config: %d error(s):\n%s", n, b.String())
}

// HasErrors reports whether any issue blocks execution.
func (is Issues) HasErrors() bool {
	for _, i := range is {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Lint returns every finding, warnings included. It does not mutate c.
func (c *Config) Lint() Issues {
	var issues Issues
	issues = append(issues, c.envIssues...)
	issues = append(issues, validateConnection(c.Import.Backend, c.Connection)...)
	issues = append(issues, validateImport(c.Import)...)
	return issues
}

// Validate returns an Issues error when any blocking issue is found, nil
// otherwise. Callers should stop before touching the datastore on error.
func (c *Config) Validate() error {
	if is := c.Lint(); is.HasErrors() {
		return is
	}
	return nil
}

func required(path, flagName, env, what string) Issue {
	msg := fmt.Sprintf("%s is required; set -%s", what, flagName)
	if env != "" {
		msg += " or " + env
	}
	return Issue{Severity: SeverityError, Path: path, Message: msg}
}

func validateConnection(backend string, c Connection) []Issue {
	var issues []Issue
	prefix := EnvPrefix(backend)
	if prefix == "" {
		// Reported by validateImport.
		return nil
	}

	type field struct {
		path, flag, key, what, value string
	}
	fields := []field{
		{"connection.host", "host", "HOST", "host", c.Host},
		{"connection.port", "port", "PORT", "port", c.Port},
		{"connection.database", "database", "DATABASE", "database", c.Database},
		{"connection.username", "username", "USERNAME", "username", c.Username},
		{"connection.password", "password", "PASSWORD", "password", c.Password},
	}
	if backend == "sqlite" {
		fields = []field{{"connection.database", "database", "DATABASE", "database file", c.Database}}
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			issues = append(issues, required(f.path, f.flag, prefix+f.key, f.what))
		}
	}

	if backend != "sqlite" && c.Port != "" {
		if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "connection.port",
				Message:  fmt.Sprintf("port %q is not a number in 1..65535", c.Port),
			})
		}
	}
	if c.Timeout <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connection.timeout",
			Message:  "timeout must be positive",
		})
	}
	return issues
}

func validateImport(im Import) []Issue {
	var issues []Issue
	errorf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains(Backends, im.Backend) {
		errorf("import.backend", "unknown backend %q; want one of %s", im.Backend, strings.Join(Backends, ", "))
	}
	if strings.TrimSpace(im.CSVPath) == "" {
		errorf("import.csv", "csv path must not be empty")
	}
	if strings.TrimSpace(im.Job) == "" {
		errorf("import.job", "job must not be empty; it labels metrics and log lines")
	}

	table, err := co2.Lookup(im.Table)
	if err != nil {
		errorf("import.table", "%v", err)
	} else {
		for _, col := range im.Dedup {
			if table.Schema.Index(col) < 0 {
				errorf("import.dedup", "column %q not in table %s", col, table.Name)
			}
		}
	}

	if im.BudgetBytes < 0 {
		errorf("import.budget_bytes", "must not be negative")
	}
	if im.BudgetRows < 0 {
		errorf("import.budget_rows", "must not be negative")
	}
	if im.BudgetBytes > 0 && im.BudgetRows > 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "import.budget",
			Message:  "both byte and row budgets set; batches flush at whichever limit is reached first",
		})
	}
	if im.Preview < 0 {
		errorf("import.preview", "must not be negative")
	}

	if _, err := csv.Decoder(im.Encoding); err != nil {
		errorf("import.encoding", "%v", err)
	}
	if utf8.RuneCountInString(im.Comma) != 1 {
		errorf("import.comma", "delimiter must be a single character, got %q", im.Comma)
	} else if strings.ContainsAny(im.Comma, "\"\r\n") {
		errorf("import.comma", "delimiter %q is not allowed", im.Comma)
	}

	switch im.MetricsBackend {
	case "none", "":
	case "pushgateway":
		if strings.TrimSpace(im.PushgatewayURL) == "" {
			errorf("import.pushgateway_url", "pushgateway backend requires a URL")
		}
	case "datadog":
		if strings.TrimSpace(im.DatadogAddr) == "" {
			errorf("import.datadog_addr", "datadog backend requires an agent address")
		}
	default:
		errorf("import.metrics_backend", "unknown metrics backend %q", im.MetricsBackend)
	}
	if im.PushInterval < 0 {
		errorf("import.push_interval", "must not be negative")
	}
	if im.PushInterval > 0 && im.MetricsBackend != "pushgateway" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "import.push_interval",
			Message:  "periodic push only applies to the pushgateway backend",
		})
	}
	return issues
}

// CommaRune returns the delimiter as a rune; callers validate first.
func (im Import) CommaRune() rune {
	r, _ := utf8.DecodeRuneInString(im.Comma)
	return r
}
