package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"manualkb/internal/config"
	"manualkb/internal/logger"
	"manualkb/internal/searcher"
	"manualkb/internal/service"
)

// kbsearch builds the index from the configured corpus and runs a single
// query against it. Useful for trying out chunking, ranking weights, and
// corpus changes without going through an MCP client.
func main() {
	configPath := flag.String("config", "", "path to YAML config file (falls back to MANUALKB_CONFIG, then built-in defaults)")
	topK := flag.Int("top-k", 0, "number of results (0 uses the configured default)")
	mode := flag.String("mode", "hybrid", "search mode: hybrid, vector, or keyword")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: kbsearch [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log.SetOutput(os.Stderr)
	_ = godotenv.Load()

	if *configPath == "" {
		*configPath = os.Getenv("MANUALKB_CONFIG")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	svc, err := service.New(cfg, logger.New(cfg.Log.Level, cfg.Log.Format))
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer func() { _ = svc.Close() }()

	ctx := context.Background()

	start := time.Now()
	if err := svc.Initialize(ctx); err != nil {
		log.Fatalf("Index build failed: %v", err)
	}
	stats := svc.Statistics()
	fmt.Fprintf(os.Stderr, "Indexed %d documents (%d chunks) in %s\n",
		stats.SourceDocuments, stats.ChunksCreated, time.Since(start).Round(time.Millisecond))

	resp, err := svc.Search(ctx, searcher.SearchRequest{
		Query: query,
		TopK:  *topK,
		Mode:  searcher.SearchMode(*mode),
	})
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	if resp.Degraded {
		fmt.Fprintf(os.Stderr, "warning: degraded results: %s\n", resp.DegradedReason)
	}
	fmt.Printf("%d results (%s, %s)\n\n", resp.TotalResults, resp.SearchMode, resp.Duration.Round(time.Millisecond))
	for _, r := range resp.Results {
		fmt.Printf("%2d. %-24s fused=%.3f vec=%.3f kw=%.3f\n",
			r.Rank, r.ChunkID, r.FusedScore, r.VectorScore, r.KeywordScore)
		fmt.Printf("    %s\n\n", snippet(r.Text, 160))
	}
}

// snippet collapses whitespace and truncates to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
