package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"promobot/internal/app"
	"promobot/internal/config"
)

const defaultConfigPath = "./config.yaml"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config (yaml or json); default ./config.yaml if present, else environment only")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	fatal := a.Err()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if fatal != nil {
		fmt.Println("fatal:", fatal)
		os.Exit(1)
	}
}
