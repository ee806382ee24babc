package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/DJune12138/Collection3"
	"github.com/DJune12138/Collection3/business"
	"github.com/DJune12138/Collection3/pkg/collection"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "list":
		listCommand()
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("collection %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file")
	selected := fs.StringArray("business", nil, "Businesses to run as category=ids, repeatable (overrides the config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := collection3.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var opts []collection3.RuntimeOption
	if len(*selected) > 0 {
		sel, err := collection.ParseSelection(*selected)
		if err != nil {
			return err
		}
		opts = append(opts, collection3.WithSelection(sel))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := collection3.Run(ctx, cfg, opts...)
	printReport(rep)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printReport(rep collection3.Report) {
	fmt.Printf("businesses=%d skipped=%d phases=%d requests=%d responses=%d errors=%d elapsed=%s\n",
		rep.Businesses, rep.Skipped, rep.Phases, rep.Requests, rep.Responses, rep.Errors, rep.Elapsed.Round(time.Millisecond))
	kinds := make([]string, 0, len(rep.ErrorsByKind))
	for k := range rep.ErrorsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-20s %d\n", k, rep.ErrorsByKind[k])
	}
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := collection3.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	refs := cfg.Businesses.Refs(business.Catalog())
	fmt.Printf("config %s looks good, %d businesses selected\n", *cfgPath, len(refs))
	for _, ref := range refs {
		fmt.Printf("  %s\n", ref)
	}
	return nil
}

func listCommand() {
	c := business.Catalog()
	for _, category := range c.Categories() {
		fmt.Println(category)
		for _, id := range c.Modules(category) {
			d, _ := c.Lookup(category, id)
			fmt.Printf("  %-12s %s\n", id, d.Summary)
		}
	}
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: *interval}
	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, client, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"collection_requests_total":  0,
		"collection_responses_total": 0,
		"collection_queue_length":    0,
		"collection_phase":           0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] phase=%.0f requests=%.0f responses=%.0f queue=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["collection_phase"],
		targets["collection_requests_total"],
		targets["collection_responses_total"],
		targets["collection_queue_length"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`Collection3 CLI

Usage:
  collection <command> [flags]

Commands:
  run        Run the selected businesses through every phase and print a report
  validate   Load and validate a config file without running anything
  list       Print the businesses shipped in the catalog
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  collection run --config ./config.yaml
  collection run --config ./config.yaml --business demo=demo1,demo2
  collection validate --config ./config.yaml
  collection stats --url http://localhost:9100/metrics --interval 1s
`)
}
