package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pubq",
		Usage: "Durable bounded event queue drained to a remote sink",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "Load environment variables from this file before parsing flags",
				EnvVars: []string{"PUBQ_ENV_FILE"},
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Queue events read from the input and publish them to the sink",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "inspect",
				Usage:  "Print the header and events of a file or nvram store without modifying it",
				Flags:  storeFlags(),
				Action: inspectStore,
			},
			{
				Name:   "clear",
				Usage:  "Drop every event of a file or nvram store",
				Flags:  storeFlags(),
				Action: clearStore,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvFile must run before subcommand flags read their EnvVars.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}
