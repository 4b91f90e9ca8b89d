// Package main provides the delayfix command: frame-accurate audio delay and
// duration correction, and the HTTP job API around it.
package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/maauso/delayfix/internal/cli"
)

var version = "dev"

type versionFlag bool

// BeforeApply prints the version and exits before any command runs.
func (versionFlag) BeforeApply(app *kong.Kong) error {
	cli.PrintVersion(app.Stdout, version)
	app.Exit(0)
	return nil
}

// CLI defines the command-line interface
type CLI struct {
	Version  versionFlag `short:"v" help:"Show version information."`
	Verbose  bool        `help:"Log every pipeline step (overrides LOG_LEVEL)."`
	KeepTemp bool        `name:"keep-temp" help:"Keep the per-run scratch directory (overrides KEEP_TEMP)."`

	Fix     FixCmd     `cmd:"" help:"Apply a delay and/or reach a target duration. Without delay and target, analyze."`
	Analyze AnalyzeCmd `cmd:"" help:"Resolve the frame clock and extract a silence clip, without writing a corrected file."`
	Serve   ServeCmd   `cmd:"" help:"Run the HTTP job API."`
}

var helpNotes = []string{
	"Delay: 2000, 2000ms, 2s, -1.5s; a bare decimal under 100 with a fraction is seconds.",
	"Target: HH:MM:SS[.mmm], MM:SS[.mmm] or SS[.mmm]. Use delay 0 to only reach a target.",
	"Put -- before a negative delay: delayfix fix movie.ac3 -- -2000",
	"Exit codes: 0 ok, 1 failure, 2 bad input, 3 frame duration, 4 silence, 5 metadata, 6 cut too long, 7 ffmpeg.",
	"Settings come from the environment: FFMPEG_PATH, FFPROBE_PATH, TEMP_DIR, S3_BUCKET, LOG_LEVEL, ...",
}

func main() {
	var args CLI
	parser, err := kong.New(&args,
		kong.Name("delayfix"),
		kong.Description("Frame-accurate audio delay and duration correction"),
		kong.Help(cli.StyledHelpPrinter("Frame-accurate audio delay and duration correction", helpNotes...)),
	)
	if err != nil {
		cli.PrintError(os.Stderr, err.Error())
		os.Exit(cli.ExitFailure)
	}

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		cli.PrintError(os.Stderr, err.Error())
		if ctx != nil {
			_ = ctx.PrintUsage(true)
		}
		os.Exit(cli.ExitInvalidInput)
	}

	globals := &Globals{
		Verbose:  args.Verbose,
		KeepTemp: args.KeepTemp,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
	if err := ctx.Run(globals); err != nil {
		cli.PrintError(os.Stderr, err.Error())
		os.Exit(cli.ExitCode(err))
	}
}
