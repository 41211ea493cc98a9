// Package config centralizes co2load configuration. Every tunable is a
// command-line flag whose default is seeded from the environment, so a .env
// file, exported variables and explicit flags compose in that order.
//
// Connection settings are read from variables prefixed with the selected
// backend (PG_HOST, CASSANDRA_HOST, MSSQL_HOST, ...). Flags always win.
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg, err := config.LoadFromArgs(fs, getenv, []string{"-backend=sqlite"})
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultTimeout applies when no *_TIMEOUT variable or -timeout flag is given.
const DefaultTimeout = 10 * time.Second

// Backends lists the storage kinds understood by the CLI.
var Backends = []string{"cassandra", "postgres", "mssql", "mysql", "sqlite"}

// envPrefix maps a backend to its connection variable prefix.
var envPrefix = map[string]string{
	"cassandra": "CASSANDRA_",
	"postgres":  "PG_",
	"mssql":     "MSSQL_",
	"mysql":     "MYSQL_",
	"sqlite":    "SQLITE_",
}

// EnvPrefix returns the connection variable prefix for backend, or "".
func EnvPrefix(backend string) string { return envPrefix[backend] }

// Connection describes how to reach the datastore. For Cassandra, Database
// is the keyspace; for SQLite it is the database file path.
type Connection struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// Import holds the tunables of a single load run.
type Import struct {
	Backend     string
	CSVPath     string
	Table       string
	CreateTable bool

	// Budget overrides. Zero keeps the backend's default budget.
	BudgetBytes int
	BudgetRows  int

	Dedup    []string
	Encoding string
	Comma    string
	Preview  int
	Job      string

	MetricsBackend string // "pushgateway", "datadog" or "none"
	PushgatewayURL string
	PushInterval   time.Duration
	DatadogAddr    string

	ValidateOnly bool
	Verbose      bool
}

// Config is the full process configuration. It is a plain value and safe to
// share across goroutines once loaded.
type Config struct {
	Connection Connection
	Import     Import

	// envIssues holds environment values that could not be parsed.
	envIssues Issues
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error unless
// required is true.
func LoadDotEnv(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// LoadFromArgs defines flags on fs, seeds their defaults through getenv and
// parses args.
//
// Precedence:
//  1. Environment values seed each flag's default.
//  2. Explicit CLI flags (in args) override the seeded defaults.
//
// Connection variables depend on the backend, which is itself a flag, so they
// are applied after parsing to every connection flag args did not set.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	cfg := &Config{}
	c, im := &cfg.Connection, &cfg.Import

	envOrDefault := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	// Malformed values fall back to the default and are reported by Lint,
	// unless the flag they seed is given explicitly.
	badEnv := map[string]Issue{}
	malformed := func(flagName, k, v, want string) {
		badEnv[flagName] = Issue{
			Severity: SeverityError,
			Path:     "env." + k,
			Message:  fmt.Sprintf("cannot parse %q as %s", v, want),
		}
	}
	intEnvOrDefault := func(flagName, k string, d int) int {
		if v := getenv(k); v != "" {
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				malformed(flagName, k, v, "an integer")
				return d
			}
			return i
		}
		return d
	}
	boolEnvOrDefault := func(flagName, k string, d bool) bool {
		if v := strings.ToLower(strings.TrimSpace(getenv(k))); v != "" {
			switch v {
			case "1", "true", "yes", "on":
				return true
			case "0", "false", "no", "off":
				return false
			}
			malformed(flagName, k, v, "a boolean")
		}
		return d
	}
	durationEnvOrDefault := func(flagName, k string, d time.Duration) time.Duration {
		if v := getenv(k); v != "" {
			x, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				malformed(flagName, k, v, "a duration")
				return d
			}
			return x
		}
		return d
	}

	var dedup string

	// Import
	fs.StringVar(&im.Backend, "backend", envOrDefault("CO2LOAD_BACKEND", "cassandra"), "Storage backend: "+strings.Join(Backends, ", "))
	fs.StringVar(&im.CSVPath, "csv", envOrDefault("CO2LOAD_CSV", "data.csv"), "Path to the emissions CSV")
	fs.StringVar(&im.Table, "table", envOrDefault("CO2LOAD_TABLE", "co2_cars"), "Destination table: co2_cars or co2_vehicles")
	fs.BoolVar(&im.CreateTable, "create-table", boolEnvOrDefault("create-table", "CO2LOAD_CREATE_TABLE", false), "Create the destination table before loading")
	fs.IntVar(&im.BudgetBytes, "budget-bytes", intEnvOrDefault("budget-bytes", "CO2LOAD_BUDGET_BYTES", 0), "Override batch byte budget (0 keeps backend default)")
	fs.IntVar(&im.BudgetRows, "budget-rows", intEnvOrDefault("budget-rows", "CO2LOAD_BUDGET_ROWS", 0), "Override batch row budget (0 keeps backend default)")
	fs.StringVar(&dedup, "dedup", getenv("CO2LOAD_DEDUP"), "Comma-separated key columns; repeated keys are rejected")
	fs.StringVar(&im.Encoding, "encoding", envOrDefault("CO2LOAD_ENCODING", "utf-8"), "CSV charset: utf-8, latin1, windows-1252")
	fs.StringVar(&im.Comma, "comma", envOrDefault("CO2LOAD_COMMA", ","), "CSV field delimiter")
	fs.IntVar(&im.Preview, "preview", intEnvOrDefault("preview", "CO2LOAD_PREVIEW", 0), "Print the first N stored rows after loading")
	fs.StringVar(&im.Job, "job", envOrDefault("CO2LOAD_JOB", "co2load"), "Job name used for metrics and logs")

	// Metrics
	fs.StringVar(&im.MetricsBackend, "metrics-backend", envOrDefault("METRICS_BACKEND", "none"), "Metrics backend: pushgateway, datadog, none")
	fs.StringVar(&im.PushgatewayURL, "pushgateway-url", envOrDefault("PUSHGATEWAY_URL", "http://localhost:9091"), "Prometheus Pushgateway URL")
	fs.DurationVar(&im.PushInterval, "push-interval", durationEnvOrDefault("push-interval", "PUSH_INTERVAL", 0), "Push metrics periodically during the run (0 pushes once at the end)")
	fs.StringVar(&im.DatadogAddr, "datadog-addr", envOrDefault("DD_AGENT_ADDR", "127.0.0.1:8125"), "DogStatsD address")

	fs.BoolVar(&im.ValidateOnly, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&im.Verbose, "v", boolEnvOrDefault("v", "CO2LOAD_VERBOSE", false), "Also log run detail such as the effective budget")

	// Connection
	var timeout time.Duration
	fs.StringVar(&c.Host, "host", "", "Datastore host (env <PREFIX>HOST)")
	fs.StringVar(&c.Port, "port", "", "Datastore port (env <PREFIX>PORT)")
	fs.StringVar(&c.Database, "database", "", "Database, keyspace or SQLite file (env <PREFIX>DATABASE)")
	fs.StringVar(&c.Username, "username", "", "Username (env <PREFIX>USERNAME)")
	fs.StringVar(&c.Password, "password", "", "Password (env <PREFIX>PASSWORD)")
	fs.DurationVar(&timeout, "timeout", 0, "Connect/request timeout (env <PREFIX>TIMEOUT, seconds)")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, iss := range badEnv {
		if !set[name] {
			cfg.envIssues = append(cfg.envIssues, iss)
		}
	}
	sort.Slice(cfg.envIssues, func(i, j int) bool { return cfg.envIssues[i].Path < cfg.envIssues[j].Path })

	prefix := EnvPrefix(im.Backend)
	if prefix != "" {
		for name, dst := range map[string]*string{
			"host":     &c.Host,
			"port":     &c.Port,
			"database": &c.Database,
			"username": &c.Username,
			"password": &c.Password,
		} {
			if !set[name] {
				*dst = getenv(prefix + strings.ToUpper(name))
			}
		}
		if !set["timeout"] {
			if v := getenv(prefix + "TIMEOUT"); v != "" {
				timeout = parseSeconds(v)
			}
		}
	}
	if !set["timeout"] && timeout == 0 {
		timeout = DefaultTimeout
	}
	c.Timeout = timeout
	im.Dedup = splitList(dedup)
	return cfg, nil
}

// Load is the production entry point: flag.CommandLine, os.Getenv and
// os.Args[1:].
func Load() (*Config, error) {
	return LoadFromArgs(flag.CommandLine, os.Getenv, os.Args[1:])
}

// parseSeconds reads a timeout given either as plain seconds ("30") or as a
// Go duration ("1m30s"). Unparseable input yields -1 so validation reports it.
func parseSeconds(v string) time.Duration {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return -1
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
