// Package cmd implements the command-line interface for qtable. The CLI does
// not serve anything; it exists to exercise a table under load with a given
// configuration.
//
// The package is organized into several subpackages:
//
//   - bench: Parallel benchmarks of a local store backed by a table
//   - stress: Concurrent readers and writers that check reclamation safety
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every table option is a persistent flag on the root command and can also be
// set through a QTABLE_* environment variable (e.g. QTABLE_LOCK_MODE=single),
// including from .env and .env.local files in the working directory.
//
// See qtable -help for a list of all commands.
package cmd
