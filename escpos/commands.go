// Package escpos holds the printer control sequences used to build receipts.
package escpos

// Control sequences understood by ESC/POS receipt printers.
const (
	// Init resets the printer to its power-on state (ESC @).
	Init = "\x1B@"

	// BoldOn enables emphasized mode (ESC E 1).
	BoldOn = "\x1B\x45\x01"

	// BoldOff disables emphasized mode (ESC E 0).
	BoldOff = "\x1B\x45\x00"

	// Cut feeds to the cutter and performs a partial cut (GS V A 0).
	Cut = "\x1D\x56\x41\x00"
)

// LineWidth is the number of printable columns on an 80mm roll in font A.
const LineWidth = 48

// Bold wraps s in emphasized mode.
func Bold(s string) string {
	return BoldOn + s + BoldOff
}
