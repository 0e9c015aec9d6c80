package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the fetch and inference services are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fetcher, err := initFetcher()
		if err != nil {
			return err
		}
		svc, err := initInfer()
		if err != nil {
			return err
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := fetcher.Ping(gCtx); err != nil {
				fmt.Fprintf(os.Stderr, "firecrawl: FAIL (%v)\n", err)
				return err
			}
			fmt.Println("firecrawl: ok")
			return nil
		})
		g.Go(func() error {
			if err := svc.Ping(gCtx); err != nil {
				fmt.Fprintf(os.Stderr, "anthropic: FAIL (%v)\n", err)
				return err
			}
			fmt.Println("anthropic: ok")
			return nil
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
