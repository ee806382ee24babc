package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/DJune12138/Collection3/pkg/collection"
)

func main() {
	pipeline, items, closeItems := collection.NewChannelPipeline(32)

	c := collection.NewCatalog()
	c.MustRegister("host", "hostname", collection.Descriptor{
		Builder: func() (collection.Builder, error) {
			return collection.NewBaseBuilder("hostname", map[string]any{"way": "shell", "command": "hostname"}), nil
		},
		Pipeline: func() (collection.Pipeline, error) { return pipeline, nil },
	})

	flow, err := collection.ConfFromConfig(collection.DefaultConfig(), collection.WithFlowOptions(
		collection.WithCatalog(c),
		collection.WithoutMetricsServer(),
	))
	if err != nil {
		log.Fatalf("build flow: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fanoutWorker("stdout", items)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = flow.Select("host", "hostname").Run(ctx)
	closeItems()
	wg.Wait()
	if err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, items <-chan *collection.Item) {
	for item := range items {
		fmt.Printf("[%s] %+v at %s\n", name, item.Payload, time.Now().Format(time.RFC3339))
	}
}
