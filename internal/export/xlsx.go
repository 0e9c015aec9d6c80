package export

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/compintel-cli/internal/model"
)

// WriteXLSX writes one workbook with Products and Promotions sheets into dir
// and returns the path written.
func WriteXLSX(dir string, products []model.ProductRecord, promotions []model.PromotionRecord, now time.Time) (string, error) {
	if err := ensureDir(dir); err != nil {
		return "", err
	}

	f := xlsx.NewFile()

	if err := addSheet(f, "Products", productHeader, productRows(products)); err != nil {
		return "", err
	}
	if err := addSheet(f, "Promotions", promotionHeader, promotionRows(promotions)); err != nil {
		return "", err
	}

	path := stampedPath(dir, "competitive_intel", "xlsx", now)
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("export: wrote xlsx", zap.String("path", path))
	return path, nil
}

func addSheet(f *xlsx.File, name string, header []string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}

	headerRow := sheet.AddRow()
	for _, h := range header {
		headerRow.AddCell().SetString(h)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	return nil
}
