package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "hldpd",
	Short: "hldpd — High-Level Debug Protocol server",
	Long: `hldpd runs a list-file script under an in-process debugger and exposes
the Sysprogs High-Level Debug Protocol over TCP for a GUI client to drive.

Getting started:
  hldpd serve script.txt                    Listen on :4711 and wait for a client
  hldpd serve --port 9229 script.txt        Listen on a different port
  hldpd serve --telemetry otel script.txt   Wrap pauses/requests in otel spans

Configuration can also come from a config file (--config) or environment
variables prefixed HLDPD_.`,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: $HOME/.hldpd.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		`Log level: "debug", "info", "warn", or "error".`)
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Emit logs as JSON instead of text")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".hldpd")
		}
	}
	viper.SetEnvPrefix("hldpd")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	// A flag given on the command line wins; otherwise an HLDPD_ variable,
	// then the config file, then the flag's default.
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
	_ = viper.BindPFlags(serveCmd.Flags())
	logLevel = viper.GetString("log-level")
	logJSON = viper.GetBool("log-json")
	servePort = viper.GetInt("port")
	serveSourceRoot = viper.GetString("source-root")
	serveTelemetry = viper.GetString("telemetry")
}

// newLogger builds the root *logrus.Entry every session's connection
// logger derives from, honoring --log-level/--log-json.
func newLogger() *logrus.Entry {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		fmt.Fprintf(os.Stderr, "hldpd: invalid --log-level %q, defaulting to info\n", logLevel)
	}
	if logJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(log)
}
