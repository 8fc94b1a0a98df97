package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/invkeeper/internal/app"
	"github.com/dmitrijs2005/invkeeper/internal/cli"
	"github.com/dmitrijs2005/invkeeper/internal/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Logs go to stderr so they do not interleave with the shell output.
	c, err := app.Build(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer c.Close()

	cli.NewApp(c.Items, c.Collection, c.Logger, os.Stdin, os.Stdout).Run(ctx)

}
