package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reportd/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	chart "github.com/wcharczuk/go-chart/v2"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(dd int) time.Time { return time.Date(2024, time.March, dd, 0, 0, 0, 0, time.Local) }

func rowsOf(rows []Row) [][2]string {
	out := make([][2]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, [2]string{r.Key, r.Total.String()})
	}
	return out
}

func TestBySaleIDScenario(t *testing.T) {
	t.Parallel()
	ds := Dataset{
		Sales: []Sale{
			{SaleID: "0001", ProductCode: "A01", Amount: d("2"), Date: day(1)},
			{SaleID: "0002", ProductCode: "A01", Amount: d("3"), Date: day(1)},
		},
		Products: []Product{{Code: "A01", Name: "Widget", Price: d("500")}},
	}
	got := BySaleID(Join(ds), 6)
	assert.Equal(t, [][2]string{{"0002", "1500"}, {"0001", "1000"}}, rowsOf(got))
}

func sampleDataset() Dataset {
	return Dataset{
		Sales: []Sale{
			{SaleID: "1", ClientID: "c1", ProductCode: "A", Amount: d("1"), Date: day(2).Add(15 * time.Hour)},
			{SaleID: "2", ClientID: "c2", ProductCode: "B", Amount: d("2"), Date: day(1)},
			{SaleID: "3", ClientID: "c9", ProductCode: "A", Amount: d("1"), Date: day(2)},
			{SaleID: "4", ClientID: "c1", ProductCode: "Z", Amount: d("5"), Date: day(3)},
		},
		Products: []Product{
			{Code: "A", Name: "Alpha", Price: d("100")},
			{Code: "B", Name: "Beta", Price: d("50")},
		},
		Clients: []Client{
			{ID: "c1", Name: "Acme"},
			{ID: "c2", Name: "Bolt"},
		},
	}
}

func TestAggregations(t *testing.T) {
	t.Parallel()
	sum := Aggregate(sampleDataset(), 6)

	// sale 4 has no product: dropped by the inner join
	assert.Equal(t, [][2]string{{"1", "100"}, {"2", "100"}, {"3", "100"}}, rowsOf(sum.BySaleID))
	assert.Equal(t, [][2]string{{"Alpha", "200"}, {"Beta", "100"}}, rowsOf(sum.ByProduct))
	// left joins keep sale 4 (zero) and the unmatched client c9
	assert.Equal(t, [][2]string{{"Acme", "100"}, {"Bolt", "100"}, {UnknownKey, "100"}}, rowsOf(sum.ByClient))
	assert.True(t, sum.Revenue.Equal(d("300")), "revenue follows the client rows")

	require.Len(t, sum.Daily, 2)
	assert.Equal(t, day(1), sum.Daily[0].Date)
	assert.Equal(t, day(2), sum.Daily[1].Date)
	assert.True(t, sum.Daily[1].Total.Equal(d("200")), "times are normalized to midnight")
}

func TestAggregateTopNTruncates(t *testing.T) {
	t.Parallel()
	var ds Dataset
	ds.Products = []Product{{Code: "P", Name: "P", Price: d("1")}}
	for i := 1; i <= 9; i++ {
		ds.Sales = append(ds.Sales, Sale{SaleID: string(rune('a' + i)), ProductCode: "P", Amount: decimal.NewFromInt(int64(i)), Date: day(1)})
	}
	sum := Aggregate(ds, 6)
	require.Len(t, sum.BySaleID, 6)
	assert.Equal(t, "j", sum.BySaleID[0].Key)
	assert.Len(t, Aggregate(ds, 0).BySaleID, 9)
}

func TestRevenueCoversTopClientsOnly(t *testing.T) {
	t.Parallel()
	var ds Dataset
	ds.Products = []Product{{Code: "P", Name: "P", Price: d("100")}}
	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		ds.Clients = append(ds.Clients, Client{ID: id, Name: "client " + id})
		ds.Sales = append(ds.Sales, Sale{SaleID: id, ClientID: id, ProductCode: "P", Amount: d("1"), Date: day(1)})
	}
	sum := Aggregate(ds, 6)
	require.Len(t, sum.ByClient, 6)
	assert.True(t, sum.Revenue.Equal(d("600")), "got %s", sum.Revenue)
	assert.Equal(t, "600", Values(sum, Charts{}, day(1))[KeyTotalRev])
	assert.True(t, Aggregate(ds, 0).Revenue.Equal(d("800")))
}

func TestByDateGroupsSameDayAcrossOffsets(t *testing.T) {
	t.Parallel()
	in := "sale_id,client_id,sale_date,amount,product_code\n" +
		"1,c1,2024-03-01T09:00:00+05:30,1,P\n" +
		"2,c1,2024-03-01T15:00:00+05:30,1,P\n" +
		"3,c1,2024-03-02,1,P\n"
	sales, err := ReadSales(strings.NewReader(in))
	require.NoError(t, err)
	days := ByDate(Join(Dataset{Sales: sales, Products: []Product{{Code: "P", Name: "P", Price: d("10")}}}))
	require.Len(t, days, 2)
	assert.Equal(t, day(1), days[0].Date)
	assert.True(t, days[0].Total.Equal(d("20")), "got %s", days[0].Total)
	assert.Equal(t, day(2), days[1].Date)
}

func TestAggregateIsIdempotent(t *testing.T) {
	t.Parallel()
	ds := sampleDataset()
	a := Aggregate(ds, 6)
	b := Aggregate(ds, 6)
	assert.Equal(t, rowsOf(a.ByClient), rowsOf(b.ByClient))
	assert.Equal(t, rowsOf(a.ByProduct), rowsOf(b.ByProduct))
	assert.Equal(t, rowsOf(a.BySaleID), rowsOf(b.BySaleID))
}

func TestReadSales(t *testing.T) {
	t.Parallel()
	in := "\ufeffsale_id,client_id,sale_date,amount,product_code,note\n" +
		"0001,c1,2024-03-01,\"1,200\",A01,x\n" +
		"\n" +
		"0002,c2,2024-03-02 10:30:00,3,A01,\n"
	sales, err := ReadSales(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.True(t, sales[0].Amount.Equal(d("1200")))
	assert.Equal(t, 10, sales[1].Date.Hour())
}

func TestReadMissingColumn(t *testing.T) {
	t.Parallel()
	_, err := ReadClients(strings.NewReader("client_id,client_name\nc1,Acme\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, errors.FlattenHints(err), "region")
}

func TestReadBadNumber(t *testing.T) {
	t.Parallel()
	_, err := ReadProducts(strings.NewReader("product_code,product_name,category,price\nA,Alpha,x,abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestFillIsSinglePass(t *testing.T) {
	t.Parallel()
	out := Fill("Top: {{top_client}} / {{total_rev}} / {{missing}}", map[string]string{
		KeyTopClient: "{{total_rev}}",
		KeyTotalRev:  "1,500",
	})
	assert.Equal(t, "Top: {{total_rev}} / 1,500 / {{missing}}", out)
}

func TestValues(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)
	v := Values(Summary{Revenue: d("1234567.5")}, Charts{Client: "abc"}, now)
	assert.Equal(t, "1,234,568", v[KeyTotalRev])
	assert.Equal(t, NotAvailable, v[KeyTopClient])
	assert.Equal(t, NotAvailable, v[KeyTopProduct])
	assert.Equal(t, "2024-03-05 14:07", v[KeyGeneratedOn])
	assert.Equal(t, "abc", v[KeyImgClient])
}

func TestPieLabels(t *testing.T) {
	t.Parallel()
	labels := PieLabels([]Row{{Key: "A", Total: d("2")}, {Key: "B", Total: d("1")}, {Key: "C", Total: d("0")}})
	assert.Equal(t, []string{"A 66.7%", "B 33.3%"}, labels)
}

func TestDayTicks(t *testing.T) {
	t.Parallel()
	days := make([]DayTotal, 30)
	for i := range days {
		days[i] = DayTotal{Date: day(1).AddDate(0, 0, i)}
	}
	ticks := DayTicks(days)
	assert.LessOrEqual(t, len(ticks), maxDayTicks)
	assert.Equal(t, "2024-03-01", ticks[0].Label)
	assert.Equal(t, chart.TimeToFloat64(days[3].Date), ticks[1].Value)
	assert.Len(t, DayTicks(days[:5]), 5)
}

func TestLineChartKeepsCalendarGaps(t *testing.T) {
	t.Parallel()
	utc := func(dd int) time.Time { return time.Date(2024, time.March, dd, 0, 0, 0, 0, time.UTC) }
	days := []DayTotal{{Date: utc(1), Total: d("5")}, {Date: utc(2), Total: d("7")}, {Date: utc(10), Total: d("1")}}
	ticks := DayTicks(days)
	require.Len(t, ticks, 3)
	assert.InEpsilon(t, 8*(ticks[1].Value-ticks[0].Value), ticks[2].Value-ticks[1].Value, 1e-9)

	img, err := LineChart(days)
	require.NoError(t, err)
	decodePNG(t, img)

	img, err = LineChart(days[:1])
	require.NoError(t, err)
	decodePNG(t, img)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func decodePNG(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(b, pngMagic))
	return b
}

func TestChartsRender(t *testing.T) {
	t.Parallel()
	charts, err := RenderCharts(Aggregate(sampleDataset(), 6))
	require.NoError(t, err)
	decodePNG(t, charts.Client)
	decodePNG(t, charts.Product)
	decodePNG(t, charts.SaleID)
	decodePNG(t, charts.Line)

	empty, err := RenderCharts(Summary{})
	require.NoError(t, err)
	decodePNG(t, empty.Client)
	decodePNG(t, empty.Line)
}

func TestToHTML(t *testing.T) {
	t.Parallel()
	page, err := ToHTML("# Sales\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<img src=\"data:image/png;base64,xx\">\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(page, htmlHead))
	assert.True(t, strings.HasSuffix(page, htmlTail))
	assert.Contains(t, page, `<h1 id="sales">Sales</h1>`)
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, `<img src="data:image/png;base64,xx">`)
}

type fakeConverter struct {
	calls int
	err   error
}

func (f *fakeConverter) Convert(_ context.Context, htmlPath, pdfPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644)
}

func writeInputs(t *testing.T, dir string) Inputs {
	t.Helper()
	in := Inputs{
		Sales:     filepath.Join(dir, "sales.csv"),
		SalesInfo: filepath.Join(dir, "sales_info.csv"),
		Client:    filepath.Join(dir, "client.csv"),
	}
	files := map[string]string{
		in.Sales:     "sale_id,client_id,sale_date,amount,product_code\n0001,c1,2024-03-01,2,A01\n0002,c2,2024-03-02,3,A01\n",
		in.SalesInfo: "product_code,product_name,category,price\nA01,Widget,tools,500\n",
		in.Client:    "client_id,client_name,region\nc1,Acme,north\nc2,Bolt,south\n",
	}
	for p, body := range files {
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return in
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := writeInputs(t, dir)
	tpl := filepath.Join(dir, "tpl.md")
	require.NoError(t, os.WriteFile(tpl, []byte("# Report {{generated_on}}\n\nRevenue: {{total_rev}}\n\nTop: {{top_client}} / {{top_product}}\n\n![c](data:image/png;base64,{{img_client}})\n"), 0o644))

	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	conv := &fakeConverter{}
	opts := Options{
		Template:  tpl,
		OutputDir: filepath.Join(dir, "out"),
		TopN:      6,
		Converter: conv,
		Now:       func() time.Time { return now },
	}
	art, err := Generate(context.Background(), in, opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "report_2024-03-05.html"), art.HTML)
	assert.Equal(t, filepath.Join(dir, "out", "report_2024-03-05.pdf"), art.PDF)
	assert.FileExists(t, art.PDF)

	page, err := os.ReadFile(art.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Revenue: 2,500")
	assert.Contains(t, string(page), "Top: Bolt / Widget")
	assert.Contains(t, string(page), "Report 2024-03-05 09:00")
	assert.NotContains(t, string(page), "{{img_client}}")

	// same-day rerun overwrites
	_, err = Generate(context.Background(), in, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.calls)
}

func TestGenerateFailures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := writeInputs(t, dir)
	base := Options{Template: filepath.Join(dir, "missing.md"), OutputDir: dir, Converter: &fakeConverter{}}

	_, err := Generate(context.Background(), in, base)
	require.Error(t, err, "missing template")

	tpl := filepath.Join(dir, "tpl.md")
	require.NoError(t, os.WriteFile(tpl, []byte("x"), 0o644))
	base.Template = tpl

	_, err = Generate(context.Background(), in, Options{Template: tpl, OutputDir: dir, Converter: ExecConverter{Path: filepath.Join(dir, "nope")}})
	assert.True(t, errors.Is(err, ErrConverterMissing))

	failing := base
	failing.Converter = &fakeConverter{err: ErrConvertFailed}
	_, err = Generate(context.Background(), in, failing)
	assert.True(t, errors.Is(err, ErrConvertFailed))

	bad := in
	bad.Client = filepath.Join(dir, "absent.csv")
	_, err = Generate(context.Background(), bad, base)
	require.Error(t, err)
}
