package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownKey labels sales whose client could not be matched.
const UnknownKey = "(unknown)"

// Line is a sale joined with its product; Total = Amount × Price.
type Line struct {
	Sale    Sale
	Product Product
	Total   decimal.Decimal
}

// Row is one group of an aggregation.
type Row struct {
	Key   string
	Total decimal.Decimal
}

type DayTotal struct {
	Date  time.Time
	Total decimal.Decimal
}

// Summary holds every figure the report needs.
type Summary struct {
	ByClient  []Row
	ByProduct []Row
	BySaleID  []Row
	Daily     []DayTotal
	// Revenue is the sum of the ByClient rows, after truncation.
	Revenue decimal.Decimal
}

// Aggregate computes all groupings; topN <= 0 disables truncation.
func Aggregate(ds Dataset, topN int) Summary {
	lines := Join(ds)
	byClient := ByClient(ds, topN)
	var revenue decimal.Decimal
	for _, r := range byClient {
		revenue = revenue.Add(r.Total)
	}
	return Summary{
		ByClient:  byClient,
		ByProduct: ByProduct(lines, topN),
		BySaleID:  BySaleID(lines, topN),
		Daily:     ByDate(lines),
		Revenue:   revenue,
	}
}

// Join inner-joins sales to products on product code. A code listed twice
// in the product reference yields one line per match, in reference order.
func Join(ds Dataset) []Line {
	products := make(map[string][]Product, len(ds.Products))
	for _, p := range ds.Products {
		products[p.Code] = append(products[p.Code], p)
	}
	out := make([]Line, 0, len(ds.Sales))
	for _, s := range ds.Sales {
		for _, p := range products[s.ProductCode] {
			out = append(out, Line{Sale: s, Product: p, Total: s.Amount.Mul(p.Price)})
		}
	}
	return out
}

func BySaleID(lines []Line, topN int) []Row {
	g := newGrouper(len(lines))
	for _, l := range lines {
		g.add(l.Sale.SaleID, l.Total)
	}
	return g.top(topN)
}

func ByProduct(lines []Line, topN int) []Row {
	g := newGrouper(len(lines))
	for _, l := range lines {
		g.add(l.Product.Name, l.Total)
	}
	return g.top(topN)
}

// ByClient left-joins sales to products (for price) and clients (for
// name). A sale with no product contributes zero; a sale with no client is
// grouped under UnknownKey. No sale is dropped.
func ByClient(ds Dataset, topN int) []Row {
	prices := make(map[string][]decimal.Decimal, len(ds.Products))
	for _, p := range ds.Products {
		prices[p.Code] = append(prices[p.Code], p.Price)
	}
	names := make(map[string][]string, len(ds.Clients))
	for _, c := range ds.Clients {
		names[c.ID] = append(names[c.ID], c.Name)
	}

	g := newGrouper(len(ds.Sales))
	for _, s := range ds.Sales {
		ps := prices[s.ProductCode]
		if len(ps) == 0 {
			ps = []decimal.Decimal{decimal.Zero}
		}
		ns := names[s.ClientID]
		if len(ns) == 0 {
			ns = []string{UnknownKey}
		}
		for _, price := range ps {
			total := s.Amount.Mul(price)
			for _, name := range ns {
				if name == "" {
					name = UnknownKey
				}
				g.add(name, total)
			}
		}
	}
	return g.top(topN)
}

// ByDate sums lines per calendar day of each sale's own date, ascending.
// It is not truncated. Days come back as local midnights.
func ByDate(lines []Line) []DayTotal {
	type ymd struct {
		y int
		m time.Month
		d int
	}
	sums := make(map[ymd]decimal.Decimal)
	for _, l := range lines {
		y, m, d := l.Sale.Date.Date()
		k := ymd{y, m, d}
		sums[k] = sums[k].Add(l.Total)
	}
	out := make([]DayTotal, 0, len(sums))
	for k, total := range sums {
		out = append(out, DayTotal{Date: time.Date(k.y, k.m, k.d, 0, 0, 0, 0, time.Local), Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// grouper sums totals per key, remembering first-seen order for ties.
type grouper struct {
	index map[string]int
	rows  []Row
}

func newGrouper(hint int) *grouper {
	return &grouper{index: make(map[string]int, hint)}
}

func (g *grouper) add(key string, total decimal.Decimal) {
	if i, ok := g.index[key]; ok {
		g.rows[i].Total = g.rows[i].Total.Add(total)
		return
	}
	g.index[key] = len(g.rows)
	g.rows = append(g.rows, Row{Key: key, Total: total})
}

func (g *grouper) top(n int) []Row {
	out := append([]Row(nil), g.rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
