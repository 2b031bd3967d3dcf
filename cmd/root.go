package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"apexcoach/pkg/config"
)

const envPrefix = "APEX"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apexcoach",
	Short: "Real-time driving coach for time-trial telemetry",
	Long: `apexcoach listens to the sim's UDP telemetry broadcast, splits the
stream into validated laps, keeps your session personal best as the
reference and tells you where the next tenth is hiding. The live
dashboard runs in the browser; sessions are archived to sqlite plus a
CSV tick log that the replay command can feed back through the same
pipeline.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./.apexcoach.yml)")

	rootCmd.PersistentFlags().IntVar(&config.UDPPort, "udp-port", 20777,
		"UDP port the sim broadcasts telemetry to")
	rootCmd.PersistentFlags().StringVar(&config.HTTPAddr, "http-addr", ":8077",
		"dashboard listen address")
	rootCmd.PersistentFlags().StringVar(&config.DBFile, "db-file", "apexcoach.db",
		"sqlite database path")
	rootCmd.PersistentFlags().StringVar(&config.DataDir, "data-dir", "./sessions",
		"directory for session CSVs and JSON reports")

	rootCmd.PersistentFlags().IntVar(&config.BinCount, "bin-count", 320,
		"distance bins per lap for the delta comparison")
	rootCmd.PersistentFlags().IntVar(&config.LapWindow, "lap-window", 10,
		"rolling window for consistency stats, in laps")
	rootCmd.PersistentFlags().IntVar(&config.CornerHistory, "corner-history", 12,
		"per-corner rolling history length")
	rootCmd.PersistentFlags().IntVar(&config.MaxCornerCallouts, "max-corner-callouts", 4,
		"corner callout budget per lap")
	rootCmd.PersistentFlags().IntVar(&config.ReportInterval, "report-interval", 5,
		"laps between periodic session reports")

	rootCmd.PersistentFlags().Float64Var(&config.GapTimeoutSec, "gap-timeout", 2.0,
		"telemetry gap in seconds that invalidates the current lap")

	rootCmd.PersistentFlags().Float64Var(&config.BrakeDiff, "brake-diff", 10,
		"brake point difference in meters that earns a callout")
	rootCmd.PersistentFlags().Float64Var(&config.SpeedDiff, "speed-diff", 5,
		"corner speed difference in km/h that earns a callout")
	rootCmd.PersistentFlags().Float64Var(&config.ThrottleDiff, "throttle-diff", 15,
		"throttle point difference in meters that earns a callout")

	rootCmd.PersistentFlags().StringVar(&config.CornersFile, "corners-file", "",
		"JSON corner definitions, empty detects corners from the reference lap")

	rootCmd.PersistentFlags().StringVar(&config.QuestDBAddr, "questdb-addr", "",
		"QuestDB ILP address (host:port), empty disables the tick sink")

	rootCmd.PersistentFlags().StringVar(&config.TelegramToken, "telegram-token", "",
		"telegram bot token for push notifications, empty disables them")
	rootCmd.PersistentFlags().Int64Var(&config.TelegramChat, "telegram-chat", 0,
		"telegram chat id that receives the pushes")

	rootCmd.PersistentFlags().StringVar(&config.LogLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&config.LogFormat, "log-format", "text",
		"log format (text or json)")

	rootCmd.AddCommand(coachCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(reportCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search config in the working directory with name ".apexcoach"
		// (without extension).
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".apexcoach")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --udp-port to APEX_UDP_PORT
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
