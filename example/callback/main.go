package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/DJune12138/Collection3/pkg/collection"
)

// uptimeCatalog registers one business that reads /proc/uptime through the file way.
func uptimeCatalog(fn collection.ItemFunc) *collection.Catalog {
	c := collection.NewCatalog()
	c.MustRegister("host", "uptime", collection.Descriptor{
		Builder: func() (collection.Builder, error) {
			return collection.NewBaseBuilder("uptime", map[string]any{"way": "file", "path": "/proc/uptime"}), nil
		},
		Pipeline: func() (collection.Pipeline, error) { return collection.NewCallbackPipeline(fn), nil },
		Summary:  "host uptime via the file way",
	})
	return c
}

func main() {
	cfg := collection.DefaultConfig()

	callback := func(_ context.Context, item *collection.Item) []*collection.Request {
		fmt.Printf("%s uptime=%v\n", time.Now().Format(time.RFC3339Nano), item.Payload)
		return nil
	}

	flow, err := collection.ConfFromConfig(cfg, collection.WithFlowOptions(
		collection.WithCatalog(uptimeCatalog(callback)),
		collection.WithoutMetricsServer(),
	))
	if err != nil {
		log.Fatalf("build flow: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := flow.Select("host", "uptime").Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
