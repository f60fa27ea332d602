package report

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"reportd/pkg/errors"
	logx "reportd/pkg/logx"
)

// Charts are the base64 PNGs embedded in the template.
type Charts struct {
	Client  string
	Product string
	SaleID  string
	Line    string
}

type Options struct {
	Template  string
	OutputDir string
	TopN      int
	Converter Converter
	Now       func() time.Time
	Log       logx.Logger
}

// Artifacts are the files written by one Generate call.
type Artifacts struct {
	HTML    string
	PDF     string
	Summary Summary
}

// OutputName returns report_<YYYY-MM-DD><ext> for the generation date.
func OutputName(now time.Time, ext string) string {
	return "report_" + now.Format("2006-01-02") + ext
}

// RenderCharts draws the three pies and the daily trend.
func RenderCharts(sum Summary) (Charts, error) {
	var c Charts
	var err error
	if c.Client, err = PieChart(sum.ByClient); err != nil {
		return Charts{}, errors.Wrap(err, "client chart")
	}
	if c.Product, err = PieChart(sum.ByProduct); err != nil {
		return Charts{}, errors.Wrap(err, "product chart")
	}
	if c.SaleID, err = PieChart(sum.BySaleID); err != nil {
		return Charts{}, errors.Wrap(err, "sale id chart")
	}
	if c.Line, err = LineChart(sum.Daily); err != nil {
		return Charts{}, errors.Wrap(err, "daily chart")
	}
	return c, nil
}

// Generate loads one file group and writes report_<date>.html and .pdf into
// OutputDir. A same-day rerun overwrites both files.
func Generate(ctx context.Context, in Inputs, opts Options) (Artifacts, error) {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}
	if opts.Converter == nil {
		return Artifacts{}, errors.WithHint(ErrConverterMissing, "set report.converter in the settings file")
	}
	if c, ok := opts.Converter.(ExecConverter); ok {
		if err := c.Check(); err != nil {
			return Artifacts{}, err
		}
	}

	ds, err := Load(in)
	if err != nil {
		return Artifacts{}, err
	}
	sum := Aggregate(ds, opts.TopN)
	log.Debug("aggregated",
		logx.Int("sales", len(ds.Sales)),
		logx.Int("clients", len(sum.ByClient)),
		logx.Int("days", len(sum.Daily)),
	)

	charts, err := RenderCharts(sum)
	if err != nil {
		return Artifacts{}, err
	}
	tpl, err := ReadTemplate(opts.Template)
	if err != nil {
		return Artifacts{}, err
	}
	page, err := ToHTML(Fill(tpl, Values(sum, charts, now)))
	if err != nil {
		return Artifacts{}, err
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, errors.Wrap(err, "create output dir")
	}
	art := Artifacts{
		HTML:    filepath.Join(dir, OutputName(now, ".html")),
		PDF:     filepath.Join(dir, OutputName(now, ".pdf")),
		Summary: sum,
	}
	if err := os.WriteFile(art.HTML, []byte(page), 0o644); err != nil {
		return Artifacts{}, errors.Wrap(err, "write html")
	}
	if err := ctx.Err(); err != nil {
		return Artifacts{}, err
	}
	if err := opts.Converter.Convert(ctx, art.HTML, art.PDF); err != nil {
		return Artifacts{}, err
	}
	log.Info("report written", logx.String("html", art.HTML), logx.String("pdf", art.PDF))
	return art, nil
}
