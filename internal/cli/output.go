package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/unkn0wn-root/querycache/record"
)

// printer renders either aligned tables or indented JSON.
type printer struct {
	w       io.Writer
	jsonFmt bool
	now     func() time.Time
}

func newPrinter(w io.Writer, output string) (*printer, error) {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "table":
		return &printer{w: w, now: time.Now}, nil
	case "json":
		return &printer{w: w, jsonFmt: true, now: time.Now}, nil
	}
	return nil, fmt.Errorf("unsupported --output %q (supported: table, json)", output)
}

// emit writes v as JSON, or the table built by rows otherwise.
func (p *printer) emit(v any, headers []string, rows func() [][]string) error {
	if p.jsonFmt {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.w, string(b))
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (p *printer) items(items []record.PantryItem, count int) error {
	return p.emit(items, []string{"ID", "INGREDIENT", "QUANTITY", "STATUS", "EXPIRES"}, func() [][]string {
		rows := make([][]string, 0, len(items)+1)
		for _, it := range items {
			rows = append(rows, []string{it.ID, it.Ingredient.Name, quantity(it), it.Status, p.expiry(it.ExpiryDate)})
		}
		if count > len(items) {
			rows = append(rows, []string{"", fmt.Sprintf("(%d of %d)", len(items), count)})
		}
		return rows
	})
}

func (p *printer) recipes(rs []record.RecipeSummary) error {
	return p.emit(rs, []string{"ID", "TITLE", "USED", "MISSED", "SAVED"}, func() [][]string {
		rows := make([][]string, 0, len(rs))
		for _, r := range rs {
			id := r.ID
			if id == "" {
				id = "ext:" + r.ExternalID
			}
			rows = append(rows, []string{id, r.Title,
				strconv.Itoa(r.UsedIngredientCount), strconv.Itoa(r.MissedIngredientCount), yesNo(r.IsSaved)})
		}
		return rows
	})
}

func quantity(it record.PantryItem) string {
	if it.Quantity == nil {
		return "-"
	}
	q := strconv.FormatFloat(float64(*it.Quantity), 'f', -1, 64)
	if it.Unit != "" {
		q += " " + it.Unit
	}
	return q
}

// expiry renders an ISO date relative to now ("3 days from now").
func (p *printer) expiry(date string) string {
	if date == "" {
		return "-"
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return humanize.RelTime(t, p.now(), "ago", "from now")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
