// Command server runs the Context add-on backend: the HTTP API for the
// embedded board app, platform webhooks and the periodic sweeps.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/boardcontext/internal/server"
	"github.com/dmitrijs2005/boardcontext/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	app, err := server.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boardcontext: %v\n", err)
		os.Exit(1)
	}

	app.Run(context.Background())
}
