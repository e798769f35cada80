package main

import (
	"context"
	"os/signal"
	"syscall"

	oneday "github.com/putto11262002/oneday/app"
)

func main() {
	ctx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	app := oneday.New(ctx, nil)
	app.Start()
}
