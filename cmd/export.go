package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/compintel-cli/internal/export"
)

var (
	exportFormat string
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest stored records to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format := exportFormat
		if format == "" {
			format = cfg.Export.Format
		}
		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		products, err := st.Products(ctx)
		if err != nil {
			return err
		}
		promotions, err := st.Promotions(ctx)
		if err != nil {
			return err
		}

		now := time.Now()
		switch format {
		case "csv":
			paths, err := export.WriteCSV(dir, products, promotions, now)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
		case "xlsx":
			path, err := export.WriteXLSX(dir, products, promotions, now)
			if err != nil {
				return err
			}
			fmt.Println(path)
		default:
			return eris.Errorf("unsupported export format: %s", format)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "export format: csv or xlsx (default from config)")
	exportCmd.Flags().StringVar(&exportDir, "out", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
