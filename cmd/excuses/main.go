package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"excuses/cmd/internal/app"
)

var CLI struct {
	Version kong.VersionFlag
	EnvFile string `help:"Dotenv file loaded before reading the environment. A missing file is ignored." name:"env-file" default:".env" type:"path"`

	Serve ServeCmd `cmd:"" help:"Run the HTTP server." default:"1"`
}

// ServeCmd flags take precedence over the environment.
type ServeCmd struct {
	Addr     string `help:"Listen address, overrides EXCUSES_HTTP_ADDR and PORT."`
	DataFile string `help:"JSON data file, overrides EXCUSES_DATA_FILE." name:"data-file"`
	LogLevel string `help:"Log level (debug, info, warn, error), overrides EXCUSES_LOG_LEVEL." name:"log-level"`
}

func (c *ServeCmd) Run() error {
	return app.Run(app.Overrides{
		HTTPAddr: c.Addr,
		DataFile: c.DataFile,
		LogLevel: c.LogLevel,
	})
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("excuses"),
		kong.Description("Serve and manage a list of excuses"),
		kong.UsageOnError(),
		kong.Vars{"version": "v1.0.0"},
	)

	// Variables already present in the environment win over the file.
	if err := godotenv.Load(CLI.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: load %s: %v\n", CLI.EnvFile, err)
		os.Exit(1)
	}

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
