//go:build linux

// Command webserver serves the document root and the register and login
// routes. Usage: webserver [config.toml]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/searchktools/reactor-server/app"
	"github.com/searchktools/reactor-server/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "webserver: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		cfg  *config.Config
		m    *config.Manager
		file string
		err  error
	)
	if len(args) > 0 {
		file = args[0]
		cfg, m, err = config.Load(file)
	} else {
		m = config.NewManager()
		m.LoadFromEnv(config.EnvPrefix)
		cfg, err = m.Config()
	}
	if err != nil {
		return err
	}

	var deps []app.Option
	if file != "" {
		deps = append(deps, app.WithConfigFile(file, m))
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.QueryTimeout())
	a, err := app.New(ctx, cfg, deps...)
	cancel()
	if err != nil {
		return err
	}
	return a.Run(context.Background())
}
