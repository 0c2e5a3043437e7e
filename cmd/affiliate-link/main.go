package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/maltedev/glamify-scraper/internal/affiliate"
	"github.com/maltedev/glamify-scraper/internal/config"
)

func main() {
	var (
		platform = flag.String("platform", affiliate.PlatformSephora, "Platform the product belongs to")
		url      = flag.String("url", "https://www.sephora.ae/en/p/example-product", "Product URL")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	linker := affiliate.NewLinker(cfg.Affiliate)

	fmt.Printf("Original URL:  %s\n", *url)
	fmt.Printf("Affiliate URL: %s\n", linker.GenerateLink(*platform, *url))
}
