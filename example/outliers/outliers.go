// Command outliers removes or replaces values outside per-column quantile
// bounds (0.05 and 0.95 by default) in a csv, json or sqlite table and
// writes the cleaned result. Paths may be bucket URLs such as
// s3://bucket/train.csv.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synoptiq/go-purgo"
	"github.com/synoptiq/go-purgo/log"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

func main() {
	var (
		data        = flag.String("data", "", "train data source (required)")
		test        = flag.String("test", "", "optional test data source")
		table       = flag.String("table", "", "table name for sqlite sources")
		out         = flag.String("out", "", "where to write the cleaned train table")
		testOut     = flag.String("test-out", "", "where to write the cleaned test table")
		target      = flag.String("target", "", "target column, never cleaned")
		catCols     = flag.String("cat", "", "comma separated categorical columns")
		replace     = flag.Bool("replace", false, "replace outliers with -999 instead of removing rows")
		q1          = flag.Float64("q1", purgo.DefaultFirstQuantile, "lower quantile")
		q3          = flag.Float64("q3", purgo.DefaultThirdQuantile, "upper quantile")
		config      = flag.String("config", "", "optional .json or .yaml parameter file")
		level       = flag.String("log-level", "info", "debug, info, warn or error")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
		dot         = flag.Bool("dot", false, "print the pipeline as a Graphviz digraph and exit")
	)
	flag.Parse()

	logger := log.NewWithLevel("purgo-outliers", "cli", purgo.PipelineVersion, log.ParseLevel(*level))
	if err := run(logger, options{
		data: *data, test: *test, table: *table, out: *out, testOut: *testOut,
		target: *target, catCols: *catCols, replace: *replace, q1: *q1, q3: *q3,
		config: *config, metricsAddr: *metricsAddr, dot: *dot,
	}); err != nil {
		logger.Error("outlier handling failed", log.Error(err))
		os.Exit(1)
	}
}

type options struct {
	data, test, table, out, testOut string
	target, catCols                 string
	replace                         bool
	q1, q3                          float64
	config, metricsAddr             string
	dot                             bool
}

func run(logger *slog.Logger, o options) error {
	if o.data == "" {
		return errors.New("-data is required")
	}

	params := map[string]any{
		purgo.KeyRemoveOutliers: !o.replace,
		purgo.KeyReplace:        o.replace,
		purgo.KeyFirstQuantile:  o.q1,
		purgo.KeyThirdQuantile:  o.q3,
	}
	if o.target != "" {
		params[purgo.KeyTarget] = o.target
	}
	if o.catCols != "" {
		params[purgo.KeyCategoricalColumns] = strings.Split(o.catCols, ",")
	}
	if o.test != "" {
		params[purgo.KeyTestDataSourcePath] = o.test
	}
	if o.table != "" {
		params[purgo.KeyTableName] = o.table
	}

	collector := purgo.NewPrometheusMetricsCollector()
	opts := []purgo.Option{
		purgo.WithName("outliers"),
		purgo.WithParams(params),
		purgo.WithLogger(logger),
		purgo.WithMetricsCollector(collector),
		purgo.WithSteps(purgo.NewOutlierHandler()),
	}
	if o.config != "" {
		opts = append(opts, purgo.WithConfigFile(o.config))
	}

	p, err := purgo.New(o.data, opts...)
	if err != nil {
		return err
	}
	defer p.Shutdown(context.Background()) //nolint:errcheck // noop provider

	if o.out != "" {
		writeParams := map[string]any{purgo.KeyOutputPath: o.out}
		if o.testOut != "" {
			writeParams[purgo.KeyTestOutputPath] = o.testOut
		}
		if err := p.Add(purgo.NewWriter(), writeParams, purgo.After(purgo.OutlierStepName)); err != nil {
			return err
		}
	}

	if o.dot {
		return p.Info().DOT(os.Stdout)
	}

	if o.metricsAddr != "" {
		srv := &http.Server{
			Addr:              o.metricsAddr,
			Handler:           promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", log.Error(err))
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := p.Process(ctx); err != nil {
		return err
	}

	fmt.Println(p.Info())
	if raw, ok := p.Params().Get(purgo.KeyOutlierBounds); ok {
		for col, b := range raw.(map[string]purgo.Bounds) {
			fmt.Printf("  %-20s [%g, %g]\n", col, b.Lower, b.Upper)
		}
	}
	for _, w := range p.Warnings() {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}
