package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/outofsight/internal/server"
	"github.com/dmitrijs2005/outofsight/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
