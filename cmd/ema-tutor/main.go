package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI represents the main CLI structure
type CLI struct {
	LogLevel string `default:"info" enum:"debug,info,warn,error" help:"Log level"`

	Run    RunCmd    `cmd:"" help:"Run a tutoring session against a realtime endpoint"`
	Schema SchemaCmd `cmd:"" help:"Print the JSON schema of the config file"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ema-tutor"),
		kong.Description("Realtime voice tutoring sessions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
