// Package receipt renders kitchen order tickets into ESC/POS byte streams.
package receipt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nixxel-company-limited/kot-dispatch/escpos"
)

// DefaultDisclaimer is printed under the totals line.
const DefaultDisclaimer = "Note: This is not a bill. Please contact cash counter for the bill."

// DefaultCompositeTypes are the item types rendered with a per-flavor breakdown.
var DefaultCompositeTypes = []string{"corndog", "beverage"}

// timestampLayout renders as YYYY-MM-DD hh:mm:ss AM/PM.
const timestampLayout = "2006-01-02 03:04:05 PM"

// Config controls how tickets are laid out.
type Config struct {
	// CompositeTypes lists item types that get the per-flavor breakdown.
	// Every other type falls back to the simple one-line-per-section form.
	CompositeTypes []string `mapstructure:"composite_types"`

	// Disclaimer is printed after the totals line.
	Disclaimer string `mapstructure:"disclaimer"`
}

// Meta carries the per-print values that are not part of the stored order.
type Meta struct {
	Cashier string
	Reprint bool
	// Now is the timestamp printed in the header. Zero means time.Now().
	Now time.Time
}

// Renderer builds ticket payloads. It holds no per-call state and is safe
// for concurrent use.
type Renderer struct {
	composite  map[string]bool
	disclaimer string
}

// NewRenderer creates a renderer, filling unset fields of cfg with defaults.
func NewRenderer(cfg Config) *Renderer {
	types := cfg.CompositeTypes
	if len(types) == 0 {
		types = DefaultCompositeTypes
	}
	composite := make(map[string]bool, len(types))
	for _, t := range types {
		composite[t] = true
	}

	disclaimer := cfg.Disclaimer
	if disclaimer == "" {
		disclaimer = DefaultDisclaimer
	}

	return &Renderer{composite: composite, disclaimer: disclaimer}
}

// RenderOrder loads the order from src and renders it.
func (r *Renderer) RenderOrder(ctx context.Context, src OrderSource, orderID int64, meta Meta) ([]byte, error) {
	order, err := src.Order(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	return r.Render(order, meta), nil
}

// Render builds the ticket for order.
func (r *Renderer) Render(order Order, meta Meta) []byte {
	now := meta.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	b.WriteString(escpos.Init)

	if meta.Reprint {
		b.WriteString(escpos.Bold("*** REPRINT ***") + "\n")
	}

	orderType := "[Pack]"
	if order.HasTable() {
		orderType = "Table "
	}
	fmt.Fprintf(&b, "Kot: %s%s%s%s%s\n",
		escpos.Bold(kotNumber(order.Number)),
		strings.Repeat(" ", 6),
		escpos.Bold(orderType),
		strings.Repeat(" ", 6),
		now.Local().Format(timestampLayout))

	rule := strings.Repeat("-", escpos.LineWidth) + "\n"
	b.WriteString(rule)
	fmt.Fprintf(&b, "Notes: %s\n", order.Notes)
	b.WriteString(rule)

	for _, item := range order.Items {
		b.WriteString(escpos.Bold(fmt.Sprintf("%d) %s", item.Quantity, item.Name)) + "\n")
		if r.composite[item.Type] {
			writeFlavorSection(&b, item.DineIn, "Table")
			writeFlavorSection(&b, item.Pack, "Pack")
		} else {
			writeSimpleSection(&b, item.DineIn, "Table")
			writeSimpleSection(&b, item.Pack, "Pack")
		}
	}

	b.WriteString(rule)
	b.WriteString(TotalsLine(order.TotalAmount.String(), order.DiscountAmount.String(),
		order.DiscountAmount.IsPositive(), meta.Cashier) + "\n")
	b.WriteString(r.disclaimer)
	b.WriteString("\n\n")
	b.WriteString(escpos.Cut)

	return []byte(b.String())
}

// TotalsLine formats the amount, with the discount when present, and right
// aligns cashier to the line width. Padding never goes below zero.
func TotalsLine(amount, discount string, hasDiscount bool, cashier string) string {
	estimate := amount
	if hasDiscount {
		estimate = fmt.Sprintf("%s (-%s)", amount, discount)
	}
	pad := escpos.LineWidth - utf8.RuneCountInString(estimate) - utf8.RuneCountInString(cashier)
	if pad < 0 {
		pad = 0
	}
	return estimate + strings.Repeat(" ", pad) + cashier
}

// kotNumber returns the segment after the last '-' of an order number.
func kotNumber(number string) string {
	if i := strings.LastIndex(number, "-"); i >= 0 {
		return number[i+1:]
	}
	return number
}

func writeFlavorSection(b *strings.Builder, raw []byte, name string) {
	section, ok := decodeSection(raw)
	if !ok || section.Total <= 0 {
		return
	}
	fmt.Fprintf(b, "  - %s (%d)\n", name, section.Total)

	for _, flavor := range sortedKeys(section.Flavors) {
		data := section.Flavors[flavor]
		if data.Total <= 0 {
			continue
		}
		var mods []string
		for _, key := range sortedKeys(data.Modifier) {
			if count := data.Modifier[key]; count > 0 {
				mods = append(mods, fmt.Sprintf("%s:%d", spaced(key), count))
			}
		}
		fmt.Fprintf(b, "    - %s: %d", spaced(flavor), data.Total)
		if len(mods) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(mods, ", "))
		}
		b.WriteString("\n")
	}
}

func writeSimpleSection(b *strings.Builder, raw []byte, name string) {
	section, ok := decodeSection(raw)
	if !ok || section.Total <= 0 {
		return
	}
	fmt.Fprintf(b, "  - %s: %d\n", name, section.Total)
}

func spaced(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
