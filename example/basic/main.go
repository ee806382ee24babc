package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/DJune12138/Collection3"
)

func main() {
	flow, err := collection3.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := flow.Select("demo", "demo1,demo2").Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("collection run exited: %v", err)
	}
	log.Printf("phases=%d requests=%d responses=%d errors=%d", rep.Phases, rep.Requests, rep.Responses, rep.Errors)
}
