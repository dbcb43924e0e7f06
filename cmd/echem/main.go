package main

import (
	"os"

	"github.com/mastercactapus/echem/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log = logrus.New()

	flagConfigFilePath string
	flagVerbose        bool
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "echem.yaml", "Config file to load; defaults are used if it does not exist.")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Debug logging, including every instrument command.")

	// errors are logged below
	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initEchem

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(methodsCmd)
	rootCmd.AddCommand(portsCmd)

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("echem failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "echem",
	Short:        "Run electrochemical methods on a potentiostat/galvanostat",
	SilenceUsage: true,
}

func initEchem(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(flagConfigFilePath)
	if err != nil {
		return err
	}
	if flagVerbose {
		cfg.Log.Level = "debug"
		cfg.Debug = true
	}
	setupLogger(log, cfg.Log)
	log.WithField("config", flagConfigFilePath).Debug("configuration loaded")
	return nil
}

func setupLogger(l *logrus.Logger, c config.LogConfig) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	l.SetOutput(os.Stderr)
}
