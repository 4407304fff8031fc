// Command coupon-csv imports and exports coupon definitions as CSV, for
// campaign handoff with marketing spreadsheets.
//
// Columns: code, discount_type, discount_value, minimum_order, max_discount,
// usage_limit, user_usage_limit, categories, products, valid_from,
// valid_until, active. List columns use ';' as the inner separator; times are
// RFC 3339; empty cells keep the "not set" zero value.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/spicekart/coupon-service/internal/domain/coupon"
	"github.com/spicekart/coupon-service/internal/storage/postgres"
)

var csvHeader = []string{
	"code", "discount_type", "discount_value", "minimum_order", "max_discount",
	"usage_limit", "user_usage_limit", "categories", "products",
	"valid_from", "valid_until", "active",
}

func main() {
	var (
		databaseURL string
		importFile  string
		exportFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&importFile, "import", "", "CSV file of coupon definitions to upsert")
	flag.StringVar(&exportFile, "export", "", "path to write current coupon definitions as CSV ('-' for stdout)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if (importFile == "") == (exportFile == "") {
		slog.Error("exactly one of --import or --export is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, importFile, exportFile); err != nil {
		slog.Error("coupon csv failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, importFile, exportFile string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if importFile != "" {
		return importCoupons(ctx, postgres.NewSeeder(pool), importFile)
	}
	return exportCoupons(ctx, postgres.NewCouponRepository(pool), exportFile)
}

func importCoupons(ctx context.Context, seeder *postgres.Seeder, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	if !equalHeader(header) {
		return errors.Errorf("unexpected header %v, want %v", header, csvHeader)
	}

	var count int
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "read line %d", line)
		}

		c, err := parseCoupon(record)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := c.CheckDefinition(); err != nil {
			return errors.Wrapf(err, "line %d: invalid coupon %q", line, c.Code)
		}

		if err := seeder.UpsertCoupon(ctx, c); err != nil {
			return errors.Wrapf(err, "line %d: upsert coupon %q", line, c.Code)
		}
		count++
	}

	slog.Info("import complete", slog.Int("coupons", count))
	return nil
}

func exportCoupons(ctx context.Context, repo *postgres.CouponRepository, path string) error {
	stats, err := repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupons")
	}

	out := os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "create %s", path)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	writer := csv.NewWriter(out)
	if err := writer.Write(csvHeader); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i := range stats {
		if err := writer.Write(formatCoupon(&stats[i].Coupon)); err != nil {
			return errors.Wrapf(err, "write coupon %q", stats[i].Code)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}

	slog.Info("export complete", slog.Int("coupons", len(stats)))
	return nil
}

func equalHeader(header []string) bool {
	if len(header) != len(csvHeader) {
		return false
	}
	for i, col := range csvHeader {
		if strings.TrimSpace(header[i]) != col {
			return false
		}
	}
	return true
}

func parseCoupon(record []string) (*coupon.Coupon, error) {
	c := &coupon.Coupon{
		Code:         record[0],
		DiscountType: coupon.DiscountType(record[1]),
	}

	var err error
	if c.DiscountValue, err = parseDecimal(record[2]); err != nil {
		return nil, errors.Wrap(err, "discount_value")
	}
	if c.MinimumOrder, err = parseDecimal(record[3]); err != nil {
		return nil, errors.Wrap(err, "minimum_order")
	}
	if c.MaxDiscount, err = parseDecimal(record[4]); err != nil {
		return nil, errors.Wrap(err, "max_discount")
	}
	if c.UsageLimit, err = parseInt(record[5]); err != nil {
		return nil, errors.Wrap(err, "usage_limit")
	}
	if c.UserUsageLimit, err = parseInt(record[6]); err != nil {
		return nil, errors.Wrap(err, "user_usage_limit")
	}
	c.Categories = splitList(record[7])
	c.Products = splitList(record[8])
	if c.ValidFrom, err = parseTime(record[9]); err != nil {
		return nil, errors.Wrap(err, "valid_from")
	}
	if c.ValidUntil, err = parseTime(record[10]); err != nil {
		return nil, errors.Wrap(err, "valid_until")
	}
	if c.Active, err = parseBool(record[11]); err != nil {
		return nil, errors.Wrap(err, "active")
	}
	return c, nil
}

func formatCoupon(c *coupon.Coupon) []string {
	return []string{
		c.Code,
		string(c.DiscountType),
		c.DiscountValue.String(),
		formatDecimal(c.MinimumOrder),
		formatDecimal(c.MaxDiscount),
		formatInt(c.UsageLimit),
		formatInt(c.UserUsageLimit),
		strings.Join(c.Categories, ";"),
		strings.Join(c.Products, ";"),
		formatTime(c.ValidFrom),
		formatTime(c.ValidUntil),
		strconv.FormatBool(c.Active),
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func formatDecimal(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseInt(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func formatInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseBool(s string) (bool, error) {
	if strings.TrimSpace(s) == "" {
		return true, nil
	}
	return strconv.ParseBool(s)
}
