package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config adds sift-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	SQLitePath            string
	APIToken              string
	VIPSenders            string
	AnalysisWindow        int
	SummaryRefreshSeconds int
	TelegramBotToken      string
	IMAPServer            string
	IMAPUsername          string
	IMAPPassword          string
	IMAPMailbox           string
	EmailPollSeconds      int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = sqlite or in-memory store)")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database file (used when database-url is empty; empty = in-memory store)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on mutating API routes (empty = open)")
	fs.StringVar(&c.VIPSenders, "vip-senders", "", "comma-separated sender names, emails, or IDs always scored critical")
	fs.IntVar(&c.AnalysisWindow, "analysis-window", 800, "number of most recent records the topic analysis covers (1..10000)")
	fs.IntVar(&c.SummaryRefreshSeconds, "summary-refresh-seconds", 300, "interval between thread summary cache refreshes (0 = disabled)")
	fs.StringVar(&c.TelegramBotToken, "telegram-bot-token", "", "Telegram bot token (empty = adapter disabled)")
	fs.StringVar(&c.IMAPServer, "imap-server", "", "IMAP server host:port (empty = email adapter disabled)")
	fs.StringVar(&c.IMAPUsername, "imap-username", "", "IMAP account username")
	fs.StringVar(&c.IMAPPassword, "imap-password", "", "IMAP account password")
	fs.StringVar(&c.IMAPMailbox, "imap-mailbox", "INBOX", "IMAP mailbox to poll for unseen messages")
	fs.IntVar(&c.EmailPollSeconds, "email-poll-seconds", 60, "interval between IMAP polls (1..3600)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}

	if c.AnalysisWindow <= 0 || c.AnalysisWindow > 10000 {
		errs = append(errs, fmt.Errorf("invalid ANALYSIS_WINDOW %d (must be 1..10000)", c.AnalysisWindow))
	}
	if c.SummaryRefreshSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid SUMMARY_REFRESH_SECONDS %d (must be >= 0)", c.SummaryRefreshSeconds))
	}

	// Email adapter settings hang together
	if c.IMAPServer != "" {
		if c.IMAPUsername == "" {
			errs = append(errs, errors.New("IMAP_USERNAME is required when IMAP_SERVER is set"))
		}
		if c.IMAPPassword == "" {
			errs = append(errs, errors.New("IMAP_PASSWORD is required when IMAP_SERVER is set"))
		}
	}
	if c.EmailPollSeconds <= 0 || c.EmailPollSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid EMAIL_POLL_SECONDS %d (must be 1..3600)", c.EmailPollSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// VIPList splits the comma-separated VIP sender config into trimmed,
// non-empty entries.
func (c *Config) VIPList() []string {
	if c.VIPSenders == "" {
		return nil
	}
	parts := strings.Split(c.VIPSenders, ",")
	vips := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			vips = append(vips, p)
		}
	}
	return vips
}
