// Package units formats on-chain integer amounts for display.
package units

import (
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals of the native coin and the reward
// token.
const EtherDecimals = 18

// FormatUnits renders amount / 10^decimals exactly, without trailing zeros
// in the fraction. 1500000000000000000 with 18 decimals is "1.5".
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	neg := amount.Sign() < 0
	digits := new(big.Int).Abs(amount).String()

	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-decimals], strings.TrimRight(digits[len(digits)-decimals:], "0")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(whole)
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// FormatBalance renders a wei amount in ether with exactly two decimals.
// Halves round away from zero.
func FormatBalance(wei *big.Int) string {
	if wei == nil {
		return "0.00"
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals-2), nil)
	half := new(big.Int).Rsh(unit, 1)

	cents := new(big.Int).Abs(wei)
	cents.Add(cents, half)
	cents.Quo(cents, unit)

	digits := cents.String()
	if len(digits) < 3 {
		digits = strings.Repeat("0", 3-len(digits)) + digits
	}
	out := digits[:len(digits)-2] + "." + digits[len(digits)-2:]
	if wei.Sign() < 0 && cents.Sign() != 0 {
		out = "-" + out
	}
	return out
}

// ParseUnits is the inverse of FormatUnits. It rejects more fractional
// digits than decimals allows.
func ParseUnits(s string, decimals int) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		return nil, false
	}
	if whole == "" || whole == "-" {
		whole += "0"
	}
	n, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", decimals-len(frac)), 10)
	if !ok {
		return nil, false
	}
	return n, true
}
