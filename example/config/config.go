package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/synoptiq/go-purgo"
)

func main() {
	path := flag.String("config", "example/config/pipeline.yaml", "pipeline definition")
	flag.Parse()

	cfg, err := purgo.LoadPipelineConfig(*path)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	registry := purgo.DefaultRegistry()
	err = registry.RegisterExecutor("report", func(ctx context.Context, params *purgo.Params) error {
		train, _, err := params.Table(purgo.KeyTrainTable)
		if err != nil {
			return err
		}
		purgo.LoggerFromContext(ctx).InfoContext(ctx, "train table after cleaning", "table", train.String())
		return nil
	})
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	p, err := purgo.BuildPipelineFromConfig(cfg, registry)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	defer p.Shutdown(context.Background()) //nolint:errcheck // best effort flush

	if err := p.Info().DOT(os.Stdout); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	if err := p.Process(context.Background()); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ %s\n", p.Info())
}
