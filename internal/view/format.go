package view

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"quotedesk/internal/symbols"
)

const missingPrice = "-.-"

var (
	idPrinter = message.NewPrinter(language.Indonesian)
	enPrinter = message.NewPrinter(language.AmericanEnglish)
)

// Currency reports the quote currency carried as a symbol prefix, or "".
func Currency(symbol string) string {
	switch {
	case strings.HasPrefix(symbol, "IDR"):
		return "IDR"
	case strings.HasPrefix(symbol, "USD"):
		return "USD"
	}
	return ""
}

// DisplaySymbol drops the currency prefix.
func DisplaySymbol(symbol string) string {
	return strings.TrimSpace(symbol[len(Currency(symbol)):])
}

// FormatPrice renders a table or card figure: rupiah as a grouped integer,
// dollars grouped in US style, everything else in Indonesian style with two
// decimals. A missing value renders as "-.-".
func FormatPrice(symbol string, v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return missingPrice
	}
	switch Currency(symbol) {
	case "IDR":
		return "Rp" + idPrinter.Sprint(number.Decimal(*v, number.MaxFractionDigits(0)))
	case "USD":
		return "$" + enPrinter.Sprint(number.Decimal(*v, number.MaxFractionDigits(3)))
	}
	return idPrinter.Sprint(number.Decimal(*v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// FormatChange renders a percent change as an arrow and its magnitude; zero counts as up.
func FormatChange(pct float64) string {
	arrow := "▲"
	if pct < 0 {
		arrow = "▼"
	}
	return fmt.Sprintf("%s %s%%", arrow, fixed(math.Abs(pct), 2))
}

// FormatTickerPrice renders a marquee figure. Nothing is grouped there, and
// instruments without a currency use the table's fraction digits.
func FormatTickerPrice(tbl *symbols.Table, symbol string, v float64) string {
	switch {
	case strings.Contains(symbol, "IDR"):
		return "Rp" + fixed(v, 0)
	case strings.Contains(symbol, "BTC"):
		return "$" + enPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
	case strings.Contains(symbol, "USD"):
		return "$" + fixed(v, 2)
	}
	return fixed(v, int32(tbl.Decimals(symbol)))
}

// FormatSignedPercent renders "+1.25%", "-0.40%" or "0.00%".
func FormatSignedPercent(pct float64) string {
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return sign + fixed(pct, 2) + "%"
}

func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
