package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/invkeeper/internal/app"
	"github.com/dmitrijs2005/invkeeper/internal/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	c, err := app.Build(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.NewServer(c).Run(ctx); err != nil {
		os.Exit(1)
	}

}
