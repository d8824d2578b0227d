package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	gapp "github.com/you-humble/meshbatch/generator/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := gapp.New(ctx)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("generator:", err)
	}
}
