package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/qtable/cmd/bench"
	"github.com/ValentinKolb/qtable/cmd/stress"
	"github.com/ValentinKolb/qtable/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "qtable",
		Short: "concurrent hash table with deferred reclamation",
		Long: fmt.Sprintf(`qtable (v%s)

A concurrent hash table for Go with lock-free lookups. Removed
entries are destroyed only after every reader that could still
see them has left its read section.`, Version),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			return util.InitLogging()
		},
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of qtable",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qtable v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(stress.StressCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupTableFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
