// Command pgwire-bench opens a pool against a backend and drives a fixed
// number of simple queries through it, reporting lease/query throughput.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftpg/pgwire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		host     string
		port     uint16
		database string
		username string
		password string
		poolSize int
		queries  int
		sql      string
	)

	cmd := &cobra.Command{
		Use:   "pgwire-bench",
		Short: "Drive queries through a pgwire connection pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := pgwire.NewPool(pgwire.PoolConfig{
				Endpoint: pgwire.Endpoint{
					Host:     host,
					Port:     port,
					Database: database,
					Username: username,
					Password: password,
				},
				Dialer:             &pgwire.TCPDialer{},
				MaxConnectionCount: poolSize,
				ConnectTimeout:     5 * time.Second,
			})
			if err != nil {
				return fmt.Errorf("opening pool: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			defer p.Shutdown(shutdownCtx)

			start := time.Now()
			for i := 0; i < queries; i++ {
				pooled, err := p.Acquire(ctx)
				if err != nil {
					return fmt.Errorf("acquiring session: %w", err)
				}

				_, err = pooled.Session().SimpleQuery(ctx, sql)
				pooled.Release()
				if err != nil {
					return fmt.Errorf("query %d: %w", i, err)
				}
			}

			elapsed := time.Since(start)
			fmt.Printf("ran %d queries in %s (%.0f/s)\n", queries, elapsed, float64(queries)/elapsed.Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "backend host")
	cmd.Flags().Uint16Var(&port, "port", 5432, "backend port")
	cmd.Flags().StringVar(&database, "database", "postgres", "database name")
	cmd.Flags().StringVar(&username, "username", "postgres", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().IntVar(&poolSize, "pool-size", 4, "max connection count")
	cmd.Flags().IntVar(&queries, "queries", 1000, "number of queries to run")
	cmd.Flags().StringVar(&sql, "sql", "SELECT 1", "query to run")

	return cmd
}
