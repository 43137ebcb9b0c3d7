package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/admariner/crawler/collect"
	"github.com/admariner/crawler/dedup"
	"github.com/admariner/crawler/engine"
	cLog "github.com/admariner/crawler/log"
	"github.com/admariner/crawler/middleware"
	"github.com/admariner/crawler/proxy"
)

var (
	maxConnections int
	rateLimitMs    int
	timeoutSec     int
	retries        int
	userAgents     []string
	proxies        []string
	skipDuplicates bool
	verbose        bool
)

var FetchCmd = &cobra.Command{
	Use:   "fetch url...",
	Short: "fetch one or more URLs through the scheduler",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args)
	},
}

func init() {
	FetchCmd.Flags().IntVarP(&maxConnections, "max-connections", "c", 10, "concurrent connections per limiter")
	FetchCmd.Flags().IntVar(&rateLimitMs, "rate-limit", 0, "minimum interval between requests in ms (forces one connection)")
	FetchCmd.Flags().IntVar(&timeoutSec, "timeout", 20, "per-request timeout in seconds")
	FetchCmd.Flags().IntVar(&retries, "retries", 3, "retry count per request")
	FetchCmd.Flags().StringSliceVar(&userAgents, "user-agent", nil, "user agent(s), rotated round-robin")
	FetchCmd.Flags().StringSliceVar(&proxies, "proxy", nil, "proxy URL(s), rotated round-robin")
	FetchCmd.Flags().BoolVar(&skipDuplicates, "skip-duplicates", true, "drop URLs already fetched in this run")
	FetchCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func run(urls []string) error {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	logger := cLog.NewLogger(cLog.NewStderrPlugin(level))
	defer logger.Sync()

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxConnections(maxConnections),
		engine.WithRetries(retries),
		engine.WithTimeout(time.Duration(timeoutSec) * time.Second),
	}
	if rateLimitMs > 0 {
		opts = append(opts, engine.WithRateLimit(time.Duration(rateLimitMs)*time.Millisecond))
	}
	if len(proxies) > 0 {
		if err := proxy.Validate(proxies...); err != nil {
			return err
		}
		opts = append(opts, engine.WithProxies(proxies...))
	}
	if len(userAgents) > 0 {
		opts = append(opts, engine.WithUserAgents(userAgents...))
	}
	if skipDuplicates {
		opts = append(opts, engine.WithStore(dedup.NewInMemory()))
	}
	if verbose {
		opts = append(opts, engine.WithEvents(middleware.LogEvents(logger, engine.Events{})))
	}
	c := engine.NewCrawler(opts...)

	g, ctx := errgroup.WithContext(context.Background())
	for _, u := range urls {
		u := u
		g.Go(func() error {
			resp, err := c.Do(ctx, u)
			if err == engine.ErrDuplicate {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", u, err)
			}
			title := ""
			if nodes := collect.FindAll(resp.Document, "title"); len(nodes) > 0 {
				title = collect.Text(nodes[0])
			}
			fmt.Printf("%d  %s  %dB  charset=%s  %q\n",
				resp.StatusCode, u, len(resp.Body), resp.Charset, title)
			return nil
		})
	}

	return g.Wait()
}
