package report

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"reportd/pkg/errors"

	"github.com/shopspring/decimal"
)

// Sale is one row of sales.csv.
type Sale struct {
	SaleID      string
	ClientID    string
	Date        time.Time
	Amount      decimal.Decimal
	ProductCode string
}

// Client is one row of client.csv.
type Client struct {
	ID     string
	Name   string
	Region string
}

// Product is one row of sales_info.csv.
type Product struct {
	Code     string
	Name     string
	Category string
	Price    decimal.Decimal
}

type Dataset struct {
	Sales    []Sale
	Clients  []Client
	Products []Product
}

// Inputs are the three files of one monitored group.
type Inputs struct {
	Sales     string
	SalesInfo string
	Client    string
}

var ErrMissingColumn = errors.New("missing required column")

var (
	salesColumns   = []string{"sale_id", "client_id", "sale_date", "amount", "product_code"}
	clientColumns  = []string{"client_id", "client_name", "region"}
	productColumns = []string{"product_code", "product_name", "category", "price"}
)

// Load reads all three inputs. Any error is fatal for the group.
func Load(in Inputs) (Dataset, error) {
	var ds Dataset
	var err error
	if ds.Sales, err = loadFile(in.Sales, ReadSales); err != nil {
		return Dataset{}, err
	}
	if ds.Products, err = loadFile(in.SalesInfo, ReadProducts); err != nil {
		return Dataset{}, err
	}
	if ds.Clients, err = loadFile(in.Client, ReadClients); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func loadFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithHint(errors.Wrapf(err, "open %s", path), "check the monitored file group paths")
	}
	defer f.Close()
	rows, err := read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return rows, nil
}

func ReadSales(r io.Reader) ([]Sale, error) {
	var out []Sale
	err := readTable(r, salesColumns, func(line int, get func(string) string) error {
		date, err := parseDate(get("sale_date"))
		if err != nil {
			return errors.Wrapf(err, "line %d: sale_date", line)
		}
		amount, err := parseNumber(get("amount"))
		if err != nil {
			return errors.Wrapf(err, "line %d: amount", line)
		}
		out = append(out, Sale{
			SaleID:      get("sale_id"),
			ClientID:    get("client_id"),
			Date:        date,
			Amount:      amount,
			ProductCode: get("product_code"),
		})
		return nil
	})
	return out, err
}

func ReadClients(r io.Reader) ([]Client, error) {
	var out []Client
	err := readTable(r, clientColumns, func(_ int, get func(string) string) error {
		out = append(out, Client{ID: get("client_id"), Name: get("client_name"), Region: get("region")})
		return nil
	})
	return out, err
}

func ReadProducts(r io.Reader) ([]Product, error) {
	var out []Product
	err := readTable(r, productColumns, func(line int, get func(string) string) error {
		price, err := parseNumber(get("price"))
		if err != nil {
			return errors.Wrapf(err, "line %d: price", line)
		}
		out = append(out, Product{
			Code:     get("product_code"),
			Name:     get("product_name"),
			Category: get("category"),
			Price:    price,
		})
		return nil
	})
	return out, err
}

// readTable decodes a header-first CSV, calling row for every record with
// a column lookup. Extra columns are ignored.
func readTable(r io.Reader, required []string, row func(line int, get func(string) string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return errors.WithHint(errors.New("empty file"), "the first row must be a header")
	}
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return errors.WithHintf(errors.Wrapf(ErrMissingColumn, "%q", col), "expected columns: %s", strings.Join(required, ", "))
		}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		get := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if err := row(line, get); err != nil {
			return err
		}
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006/01/02",
	"2006/01/02 15:04:05",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized date %q", s)
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, errors.New("empty value")
	}
	return decimal.NewFromString(s)
}
