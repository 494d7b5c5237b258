package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IAL32/clickhouse-async/pkg/client"
	"github.com/IAL32/clickhouse-async/pkg/config"
	"github.com/IAL32/clickhouse-async/pkg/log"
	"github.com/IAL32/clickhouse-async/pkg/metrics"
)

var (
	flagConfig string
	flagDSN    string
)

var rootCmd = &cobra.Command{
	Use:   "chc",
	Short: "ClickHouse native-protocol client",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "Connection string (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration, initializes logging and metrics, and opens
// a client.
func setup(ctx context.Context) (*client.Client, *metrics.MetricsServer, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log.Setup(&cfg.Log)

	m := metrics.NewMetrics()
	var ms *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		ms = metrics.NewMetricsServer(m, cfg.Metrics.Addr)
		if err := ms.Start(); err != nil {
			return nil, nil, fmt.Errorf("start metrics server: %w", err)
		}
	}

	var opts client.Options
	if flagDSN != "" {
		opts, err = client.ParseDSN(flagDSN)
		if err != nil {
			return nil, nil, err
		}
		opts.Metrics = m
	} else {
		opts = client.OptionsFromConfig(&cfg.ClickHouse, m)
	}

	c, err := client.Open(ctx, opts)
	if err != nil {
		if ms != nil {
			ms.Stop()
		}
		return nil, nil, err
	}
	return c, ms, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()
	return ctx, cancel
}

func init() {
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is reachable and responsive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, ms, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if ms != nil {
				defer ms.Stop()
			}

			if err := c.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			info := c.ServerInfo()
			fmt.Printf("OK: %s\n", info)
			return nil
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute a query and print the result as tab-separated rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, ms, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if ms != nil {
				defer ms.Stop()
			}

			sql := strings.Join(args, " ")
			rows, err := c.QueryStream(ctx, sql)
			if err != nil {
				return err
			}
			defer rows.Close()

			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			headerPrinted := false
			for rows.Next() {
				b := rows.Block()
				if !headerPrinted {
					fmt.Fprintln(tw, strings.Join(b.ColumnNames(), "\t"))
					headerPrinted = true
				}
				for i := 0; i < b.Rows(); i++ {
					cells := make([]string, 0, len(b.Columns))
					for _, v := range b.Row(i) {
						cells = append(cells, formatValue(v))
					}
					fmt.Fprintln(tw, strings.Join(cells, "\t"))
				}
			}
			if err := rows.Err(); err != nil {
				return err
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			p := rows.Progress()
			log.Debug("query finished", "rows", p.Rows, "bytes", p.Bytes)
			return nil
		},
	}

	execCmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute a statement and discard any result rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, ms, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if ms != nil {
				defer ms.Stop()
			}

			if err := c.Exec(ctx, strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}

	rootCmd.AddCommand(pingCmd, queryCmd, execCmd)
}

func formatValue(v any) string {
	if v == nil {
		return "\\N"
	}
	return fmt.Sprintf("%v", v)
}
