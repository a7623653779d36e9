package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/qtable/lib/alloc"
	"github.com/ValentinKolb/qtable/lib/logging"
	"github.com/ValentinKolb/qtable/lib/table"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var plog = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupTableFlags adds the table configuration flags to a command
func SetupTableFlags(cmd *cobra.Command) {
	defaults := table.DefaultOptions()

	key := "buckets"
	cmd.PersistentFlags().Int(key, defaults.Buckets, WrapString("Number of hash buckets (rounded up to a power of two)"))

	key = "lock-mode"
	cmd.PersistentFlags().String(key, defaults.LockMode.String(), WrapString("Lock granularity for writers (single, per-bucket)"))

	key = "counter-mode"
	cmd.PersistentFlags().String(key, defaults.CounterMode.String(), WrapString("Where removed entries keep their deletion epoch (per-entry, shared)"))

	key = "quiescence"
	cmd.PersistentFlags().String(key, defaults.Quiescence.String(), WrapString("Quiescence test used before destroying a removed entry (exact, counters)"))

	key = "non-blocking-alloc"
	cmd.PersistentFlags().Bool(key, false, WrapString("Fail inserts instead of waiting when the allocation limit is reached"))

	key = "reclaim-delay"
	cmd.PersistentFlags().Duration(key, defaults.ReclaimDelay, WrapString("Delay between reclaim attempts for a removed entry"))

	key = "retry-delay"
	cmd.PersistentFlags().Duration(key, defaults.RetryDelay, WrapString("Delay between lazy-retry passes for entries without a reclamation counter"))

	key = "alloc-limit"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum number of outstanding table objects (0 = unlimited). A limit makes inserts non-blocking"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Log level (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("qtable")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// InitLogging applies the configured log level to all package loggers
func InitLogging() error {
	return logging.InitLoggers(viper.GetString("log-level"))
}

// GetTableOptions reads the table configuration from viper. The returned
// tracker is the table's allocator and can be queried for accounting.
// With an allocation limit, inserts are always non-blocking.
func GetTableOptions(name string) (*table.Options, *alloc.Tracker, error) {
	opts := table.DefaultOptions()
	opts.Name = name
	opts.Buckets = viper.GetInt("buckets")
	opts.NonBlockingAlloc = viper.GetBool("non-blocking-alloc")
	opts.ReclaimDelay = viper.GetDuration("reclaim-delay")
	opts.RetryDelay = viper.GetDuration("retry-delay")

	var err error
	if opts.LockMode, err = table.ParseLockMode(viper.GetString("lock-mode")); err != nil {
		return nil, nil, err
	}
	if opts.CounterMode, err = table.ParseCounterMode(viper.GetString("counter-mode")); err != nil {
		return nil, nil, err
	}
	if opts.Quiescence, err = table.ParseQuiescence(viper.GetString("quiescence")); err != nil {
		return nil, nil, err
	}

	limit := viper.GetInt("alloc-limit")
	if limit > 0 && !opts.NonBlockingAlloc {
		// bench and stress workers only stop between operations
		plog.Warningf("alloc-limit %d set: inserts will fail instead of waiting for memory", limit)
		opts.NonBlockingAlloc = true
	}
	tracker := alloc.NewTracker(limit)
	opts.Allocator = tracker
	return opts, tracker, nil
}

// OptionsString renders table options for the configuration printout
func OptionsString(opts *table.Options) string {
	return fmt.Sprintf("Buckets: %d\nLock mode: %s\nCounter mode: %s\nQuiescence: %s\nNon-blocking alloc: %v\nReclaim delay: %s\nRetry delay: %s\nAlloc limit: %d",
		opts.Buckets, opts.LockMode, opts.CounterMode, opts.Quiescence, opts.NonBlockingAlloc,
		opts.ReclaimDelay.Round(time.Microsecond), opts.RetryDelay.Round(time.Microsecond), viper.GetInt("alloc-limit"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
