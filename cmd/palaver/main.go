package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-go-golems/palaver/cmd/palaver/cmds"
	"github.com/go-go-golems/palaver/pkg/settings"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:           "palaver",
	Short:         "palaver is a terminal client for a remote chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// flags are parsed now, so --log-level and co can take effect.
		// The TUI owns the terminal, so it only logs to --log-file.
		return initLogger(cmd.Name() == cmds.ChatCommandName)
	},
}

func initLogger(quiet bool) error {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
		Quiet:      quiet,
	})
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
	Quiet      bool
}

func initCommands(rootCmd *cobra.Command, configPath string) error {
	settings.LoadDotEnv()

	if err := settings.InitViper(viper.GetViper(), configPath); err != nil {
		return err
	}

	err := viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}

	if err := initLogger(false); err != nil {
		return err
	}

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	// default is json
	var logWriter io.Writer
	if config.Quiet {
		logWriter = io.Discard
	} else if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	ctx := zerolog.New(logWriter).With().Timestamp()
	if config.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	if config.Level == "" {
		config.Level = "info"
	}
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString("Error: %s", err))
		os.Exit(1)
	}
}

// configFileFromArgs scans args once for --config, before cobra parses them.
// The last occurrence wins.
func configFileFromArgs(args []string) string {
	configFile := ""
	for idx, arg := range args {
		switch {
		case arg == "--config" && len(args) > idx+1:
			configFile = args[idx+1]
		case strings.HasPrefix(arg, "--config="):
			configFile = strings.TrimPrefix(arg, "--config=")
		}
	}
	return configFile
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./palaver.yaml or ~/.palaver/palaver.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	settings.AddFlags(rootCmd.PersistentFlags())

	err := initCommands(rootCmd, configFileFromArgs(os.Args))
	if err != nil {
		panic(err)
	}

	historyCmd, err := cmds.NewHistoryCobraCommand()
	cobra.CheckErr(err)
	healthCmd, err := cmds.NewHealthCobraCommand()
	cobra.CheckErr(err)

	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewSendCommand(),
		historyCmd,
		cmds.NewClearCommand(),
		healthCmd,
	)
}
