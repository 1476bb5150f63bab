package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cfoust/avalon/pkg/config"
	"github.com/cfoust/avalon/pkg/version"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Version bool `help:"Print version information and exit." short:"v"`
	Debug   bool `help:"Whether to enable debug logging."`

	Serve struct {
		ServeFlags
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files for the server." type:"existingfile"`
	} `cmd:"" help:"Start the avalon server."`

	Token struct {
		Player  string   `arg:"" name:"player" help:"Player the token identifies, as the chat bridge knows them."`
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files holding the signing secret." type:"existingfile"`
		Hours   int      `help:"Hours until the token expires. Defaults to server.ingress.tokenHours." placeholder:"HOURS"`
	} `cmd:"" help:"Issue a token a player can sign in with."`

	Config struct {
	} `cmd:"" help:"Write the default configuration to standard output."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if len(os.Args) == 1 {
		err := serveCommand([]string{}, ServeFlags{})
		if err != nil {
			writeError(err)
		}
		return
	}

	ctx := kong.Parse(&CLI,
		kong.Name("avalon"),
		kong.Description("asynchronous Avalon for chat rooms"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	if CLI.Version {
		fmt.Printf(
			"avalon %s (commit %s)\n",
			version.Version,
			version.GitCommit,
		)
		fmt.Printf(
			"built %s\n",
			version.BuildTime,
		)
		os.Exit(0)
	}

	switch ctx.Command() {
	case "serve":
		fallthrough
	case "serve <configs>":
		err := serveCommand(CLI.Serve.Configs, CLI.Serve.ServeFlags)
		if err != nil {
			writeError(err)
		}
	case "token <player>":
		fallthrough
	case "token <player> <configs>":
		err := tokenCommand(CLI.Token.Player, CLI.Token.Configs, CLI.Token.Hours)
		if err != nil {
			writeError(err)
		}
	case "config":
		os.Stdout.Write(config.DEFAULT)
	}
}
