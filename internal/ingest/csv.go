package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/callmeahab/catalog-search/internal/catalog"
)

// Listing CSV columns. title and source_id are required; the rest may be
// absent from the header.
var listingColumns = []string{"title", "source_id", "price", "ship_price", "url", "available", "observed_at"}

// ErrMissingColumn is returned when a required column is absent from a header.
var ErrMissingColumn = errors.New("missing required column")

type header map[string]int

func readHeader(r *csv.Reader, required ...string) (header, error) {
	row, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv: empty input")
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, fmt.Errorf("csv: %w %q", ErrMissingColumn, name)
		}
	}
	return h, nil
}

func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// ReadListings parses a listing CSV. Unparseable prices and flags are passed
// through as invalid values for Sanitize to coerce; a missing observed_at
// becomes now.
func ReadListings(r io.Reader, now time.Time) ([]catalog.RawListing, error) {
	cr := newReader(r)
	h, err := readHeader(cr, listingColumns[0], listingColumns[1])
	if err != nil {
		return nil, err
	}

	var out []catalog.RawListing
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		source, err := strconv.Atoi(h.get(row, "source_id"))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: source_id: %w", line, err)
		}
		observed, err := parseTime(h.get(row, "observed_at"), now)
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: observed_at: %w", line, err)
		}
		available, _ := strconv.Atoi(h.get(row, "available"))
		out = append(out, catalog.RawListing{
			Title:      h.get(row, "title"),
			SourceID:   source,
			Price:      parsePrice(h.get(row, "price")),
			ShipPrice:  parsePrice(h.get(row, "ship_price")),
			URL:        h.get(row, "url"),
			Available:  available,
			ObservedAt: observed,
		})
	}
}

// parsePrice accepts "1 234,50" as well as "1234.50". Anything else is NaN.
func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return p
}

func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC().Truncate(time.Second), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Second), nil
}

// GoodRecord is one row of the goods metadata CSV.
type GoodRecord struct {
	ID   int
	Meta catalog.GroupMeta
}

// ReadGoods parses id,title,group_id,brand_id,brand_name rows.
func ReadGoods(r io.Reader) ([]GoodRecord, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "id", "title")
	if err != nil {
		return nil, err
	}
	var out []GoodRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		id, err := strconv.Atoi(h.get(row, "id"))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: id: %w", line, err)
		}
		group, err := optionalInt(h.get(row, "group_id"), catalog.UncategorizedGroup)
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: group_id: %w", line, err)
		}
		brandID, err := optionalInt(h.get(row, "brand_id"), 0)
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: brand_id: %w", line, err)
		}
		out = append(out, GoodRecord{ID: id, Meta: catalog.GroupMeta{
			GroupName:     h.get(row, "title"),
			FilterGroupID: group,
			BrandID:       brandID,
			BrandName:     h.get(row, "brand_name"),
		}})
	}
}

// MatchRecord is one trained title to identity pair.
type MatchRecord struct {
	Title  string
	GoodID int
}

// ReadMatches parses title,good_id rows.
func ReadMatches(r io.Reader) ([]MatchRecord, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "title", "good_id")
	if err != nil {
		return nil, err
	}
	var out []MatchRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		id, err := strconv.Atoi(h.get(row, "good_id"))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: good_id: %w", line, err)
		}
		out = append(out, MatchRecord{Title: h.get(row, "title"), GoodID: id})
	}
}

// SourceRecord names one source.
type SourceRecord struct {
	ID   int
	Name string
}

// ReadSources parses id,name rows.
func ReadSources(r io.Reader) ([]SourceRecord, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "id", "name")
	if err != nil {
		return nil, err
	}
	var out []SourceRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		id, err := strconv.Atoi(h.get(row, "id"))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: id: %w", line, err)
		}
		out = append(out, SourceRecord{ID: id, Name: h.get(row, "name")})
	}
}

func optionalInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
