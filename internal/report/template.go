package report

import (
	"os"
	"sort"
	"strings"
	"time"

	"reportd/pkg/errors"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Placeholder keys understood by the template.
const (
	KeyImgClient   = "img_client"
	KeyImgProduct  = "img_prod"
	KeyImgSaleID   = "img_id"
	KeyImgLine     = "img_line"
	KeyTotalRev    = "total_rev"
	KeyTopClient   = "top_client"
	KeyTopProduct  = "top_product"
	KeyGeneratedOn = "generated_on"
)

// NotAvailable fills top_client/top_product when nothing was aggregated.
const NotAvailable = "N/A"

const GeneratedLayout = "2006-01-02 15:04"

// FormatMoney rounds to whole units with thousands separators.
func FormatMoney(d decimal.Decimal) string {
	return humanize.Comma(d.Round(0).IntPart())
}

// Values builds the substitution table for one report.
func Values(sum Summary, charts Charts, now time.Time) map[string]string {
	top := func(rows []Row) string {
		if len(rows) == 0 {
			return NotAvailable
		}
		return rows[0].Key
	}
	return map[string]string{
		KeyImgClient:   charts.Client,
		KeyImgProduct:  charts.Product,
		KeyImgSaleID:   charts.SaleID,
		KeyImgLine:     charts.Line,
		KeyTotalRev:    FormatMoney(sum.Revenue),
		KeyTopClient:   top(sum.ByClient),
		KeyTopProduct:  top(sum.ByProduct),
		KeyGeneratedOn: now.Format(GeneratedLayout),
	}
}

// Fill replaces every {{key}} with its value in a single pass. Substituted
// text is never scanned again, so values containing braces stay literal.
// Unknown placeholders are left untouched.
func Fill(tpl string, values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", values[k])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

func ReadTemplate(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WithHint(errors.Wrap(err, "read template"), "set report.template in the settings file")
	}
	return string(b), nil
}
