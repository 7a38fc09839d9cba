package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	"github.com/mailferry/mailferry/pkg/mailferry"
)

var version = "dev"

type CLI struct {
	Config  string `help:"Config directory path" default:"~/.config/mailferry" type:"path"`
	JSON    bool   `help:"JSON output format"`
	Verbose bool   `help:"Verbose logging (includes RPC traces)"`
	NoColor bool   `help:"Disable colored output"`

	Transfer struct {
		Source     string  `help:"Source account email (overrides config file)"`
		Archive    string  `help:"Archive account email (overrides config file)"`
		DryRun     bool    `help:"Log intended actions without mutating the archive" name:"dry-run"`
		Rate       float64 `help:"Sustained requests per second (default 2)"`
		PageSize   int64   `help:"Mailbox list page size (default 100)" name:"page-size"`
		MaxRetries int     `help:"Retry budget per message (default 5)" name:"max-retries"`
		Dedup      bool    `help:"Skip messages whose Message-ID already exists in the archive"`
		Limit      int     `help:"Stop after this many messages (0 = all)"`
		Yes        bool    `short:"y" help:"Skip the confirmation prompt"`
	} `cmd:"" help:"Transfer all mail from the source account into the archive account"`

	Configure struct {
		Account string `arg:"" required:"" help:"Account email to authorize"`
	} `cmd:"" help:"Run OAuth authorization for an account"`

	Version struct{} `cmd:"" help:"Show version"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("mailferry"),
		kong.Description("Rate-limited Gmail-to-Gmail archive migration"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	out := newOutputWriter(cli.JSON, cli.NoColor, cli.Verbose)

	switch kctx.Command() {
	case "transfer":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := runTransfer(ctx, &cli, out); err != nil {
			out.writeError(err)
			os.Exit(2)
		}

	case "configure <account>":
		ctx := context.Background()
		if err := mailferry.Authorize(ctx, cli.Config, cli.Configure.Account); err != nil {
			out.writeError(err)
			os.Exit(3)
		}

	case "version":
		fmt.Printf("mailferry %s\n", version)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", kctx.Command())
		os.Exit(1)
	}
}
