package reconcile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// RawItem is a line item whose fields passed type coercion
type RawItem struct {
	Description string
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
	Amount      decimal.Decimal
}

// PageTotals are the totals a page states about itself or the document
type PageTotals struct {
	Subtotal   *decimal.Decimal
	FinalTotal *decimal.Decimal
}

var (
	itemListKeys    = []string{"line_items", "bill_items", "items"}
	descriptionKeys = []string{"description", "item_name", "name"}
	quantityKeys    = []string{"quantity", "item_quantity", "qty"}
	rateKeys        = []string{"rate", "item_rate", "unit_price", "price"}
	amountKeys      = []string{"amount", "item_amount", "total"}
	subtotalKeys    = []string{"page_subtotal", "subtotal", "sub_total"}
	finalTotalKeys  = []string{"final_total", "grand_total", "total_amount", "total"}

	numberRe = regexp.MustCompile(`-?(?:\d[\d,]*(?:\.\d+)?|\.\d+)`)
)

// ValidatePage checks a parsed page against the line item contract.
// Any malformed item fails the whole page with a *SchemaError.
func ValidatePage(raw RawPage) ([]RawItem, error) {
	if raw.Failed {
		return nil, &SchemaError{Page: raw.Index, Item: -1, Field: "page", Reason: raw.Reason}
	}

	key, list, ok := lookup(raw.Fields, itemListKeys)
	if !ok || list == nil {
		return nil, nil
	}
	rows, ok := list.([]any)
	if !ok {
		return nil, &SchemaError{Page: raw.Index, Item: -1, Field: key, Reason: fmt.Sprintf("expected a list, got %T", list)}
	}

	items := make([]RawItem, 0, len(rows))
	for i, row := range rows {
		fields, ok := row.(map[string]any)
		if !ok {
			return nil, &SchemaError{Page: raw.Index, Item: i, Field: "item", Reason: fmt.Sprintf("expected an object, got %T", row)}
		}
		item, err := validateItem(raw.Index, i, fields)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func validateItem(page, idx int, fields map[string]any) (RawItem, error) {
	var item RawItem

	_, desc, ok := lookup(fields, descriptionKeys)
	if !ok || desc == nil {
		return item, &SchemaError{Page: page, Item: idx, Field: "description", Reason: "missing"}
	}
	text, ok := desc.(string)
	if !ok {
		return item, &SchemaError{Page: page, Item: idx, Field: "description", Reason: fmt.Sprintf("expected a string, got %T", desc)}
	}
	item.Description = strings.TrimSpace(text)
	if item.Description == "" {
		return item, &SchemaError{Page: page, Item: idx, Field: "description", Reason: "empty"}
	}

	numeric := []struct {
		name string
		keys []string
		dst  *decimal.Decimal
	}{
		{"quantity", quantityKeys, &item.Quantity},
		{"rate", rateKeys, &item.Rate},
		{"amount", amountKeys, &item.Amount},
	}
	for _, f := range numeric {
		_, v, ok := lookup(fields, f.keys)
		if !ok || v == nil {
			return item, &SchemaError{Page: page, Item: idx, Field: f.name, Reason: "missing"}
		}
		d, err := coerceDecimal(v)
		if err != nil {
			return item, &SchemaError{Page: page, Item: idx, Field: f.name, Reason: err.Error()}
		}
		*f.dst = d
	}
	return item, nil
}

// ReadStatedTotals reads the subtotal and final total a page claims.
// Malformed values are reported as issues and otherwise ignored.
func ReadStatedTotals(raw RawPage) (PageTotals, []ValidationIssue) {
	var (
		totals PageTotals
		issues []ValidationIssue
	)
	if raw.Failed {
		return totals, nil
	}

	read := func(keys []string) *decimal.Decimal {
		key, v, ok := lookup(raw.Fields, keys)
		if !ok || v == nil {
			return nil
		}
		d, err := coerceDecimal(v)
		if err != nil {
			issues = append(issues, ValidationIssue{
				Kind:      IssueSchemaError,
				PageIndex: raw.Index,
				Detail:    fmt.Sprintf("ignoring stated %s: %v", key, err),
			})
			return nil
		}
		return &d
	}

	totals.Subtotal = read(subtotalKeys)
	totals.FinalTotal = read(finalTotalKeys)
	return totals, issues
}

// coerceDecimal converts a loosely-typed JSON value into a decimal
func coerceDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case json.Number:
		return decimal.NewFromString(val.String())
	case float64:
		return decimal.NewFromFloat(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case string:
		return parseNumericText(val)
	default:
		return decimal.Zero, fmt.Errorf("expected a number, got %T", v)
	}
}

// parseNumericText accepts strings such as "1,250.00", "Rs. 40" or "2 Nos"
func parseNumericText(s string) (decimal.Decimal, error) {
	matches := numberRe.FindAllString(s, -1)
	switch len(matches) {
	case 0:
		return decimal.Zero, fmt.Errorf("no number in %q", s)
	case 1:
	default:
		return decimal.Zero, fmt.Errorf("ambiguous number in %q", s)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(matches[0], ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %q: %w", s, err)
	}
	return d, nil
}

// lookup returns the first present key, matching case-insensitively
func lookup(fields map[string]any, keys []string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return k, v, true
		}
	}
	for k, v := range fields {
		for _, want := range keys {
			if strings.EqualFold(k, want) {
				return k, v, true
			}
		}
	}
	return "", nil, false
}
