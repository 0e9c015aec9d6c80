package export

import (
	"encoding/csv"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compintel-cli/internal/model"
)

// WriteCSV writes products.csv and promotions.csv into dir and returns
// the paths written. Empty record sets still produce a header-only file.
func WriteCSV(dir string, products []model.ProductRecord, promotions []model.PromotionRecord, now time.Time) ([]string, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	productsPath := stampedPath(dir, "products", "csv", now)
	if err := writeCSVFile(productsPath, productHeader, productRows(products)); err != nil {
		return nil, err
	}

	promotionsPath := stampedPath(dir, "promotions", "csv", now)
	if err := writeCSVFile(promotionsPath, promotionHeader, promotionRows(promotions)); err != nil {
		return nil, err
	}

	zap.L().Info("export: wrote csv",
		zap.String("products", productsPath),
		zap.String("promotions", promotionsPath),
	)
	return []string{productsPath, promotionsPath}, nil
}

func productRows(records []model.ProductRecord) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = productRow(r)
	}
	return rows
}

func promotionRows(records []model.PromotionRecord) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = promotionRow(r)
	}
	return rows
}

func writeCSVFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "export: write header %s", path)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "export: write row %s", path)
		}
	}
	w.Flush()
	return eris.Wrapf(w.Error(), "export: flush %s", path)
}
