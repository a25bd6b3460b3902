// Package export renders calculation results into downloadable documents.
// The only format currently offered is the German-locale CSV download the
// web calculator serves; amounts use dot-grouped thousands and a comma
// decimal separator ("1.234.567,89 €").
package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
)

// bom marks the output as UTF-8 so spreadsheet imports keep the umlauts.
const bom = "\uFEFF"

var frequencyLabels = map[domain.CompoundFrequency]string{
	domain.CompoundMonthly:   "Monatlich",
	domain.CompoundQuarterly: "Vierteljährlich",
	domain.CompoundYearly:    "Jährlich",
}

// FormatCurrency renders a euro amount in German notation, for example
// "1.234.567,89 €".
func FormatCurrency(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	b.WriteString(" €")
	return b.String()
}

// FormatPercent renders a percentage with one decimal in German notation,
// for example "4,5%".
func FormatPercent(value float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(value, 'f', 1, 64), ".", ",") + "%"
}

func frequencyLabel(f domain.CompoundFrequency) string {
	if label, ok := frequencyLabels[f]; ok {
		return label
	}
	if f == "" {
		return frequencyLabels[domain.CompoundMonthly]
	}
	return string(f)
}

// Filename derives the download name for an exported calculation, for
// example "Zinseszins-Berechnung_10k-EUR_10Jahre_2025-06-01.csv".
func Filename(req domain.CalculationRequest, now time.Time) string {
	return fmt.Sprintf("Zinseszins-Berechnung_%dk-EUR_%dJahre_%s.csv",
		int(req.Principal/1000), req.Years, now.Format("2006-01-02"))
}

// WriteCSV writes the German CSV rendition of a calculation: a summary
// block of key/value rows followed by the per-year table. Every field is
// quoted, matching what the web calculator's download produced.
func WriteCSV(w io.Writer, req domain.CalculationRequest, res *domain.CalculationResult, now time.Time) error {
	totalReturn := 0.0
	if res.TotalContributions != 0 {
		totalReturn = (res.FinalAmount - res.TotalContributions) / res.TotalContributions * 100
	}

	summary := [][2]string{
		{"Startkapital", FormatCurrency(req.Principal)},
		{"Monatliche Sparrate", FormatCurrency(req.MonthlyPayment)},
		{"Zinssatz", FormatPercent(req.AnnualRate)},
		{"Laufzeit", fmt.Sprintf("%d Jahre", req.Years)},
		{"Zinszahlungsfrequenz", frequencyLabel(req.CompoundFrequency)},
		{"Endkapital", FormatCurrency(res.FinalAmount)},
		{"Eingezahlt gesamt", FormatCurrency(res.TotalContributions)},
		{"Zinserträge", FormatCurrency(res.TotalInterest)},
		{"Gesamtrendite", FormatPercent(totalReturn)},
		{"Jährliche Rendite", FormatPercent(res.AnnualReturn)},
		{"Berechnet am", now.Format("02.01.2006")},
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(bom)
	bw.WriteString("ZINSESZINS-BERECHNUNG ÜBERSICHT\n\n")
	for _, row := range summary {
		writeQuoted(bw, row[0], row[1])
	}

	bw.WriteString("\n\nJÄHRLICHE ENTWICKLUNG\n\n")
	if len(res.YearlyBreakdown) > 0 {
		writeQuoted(bw, "Jahr", "Startbetrag", "Einzahlungen", "Zinserträge", "Endbetrag", "Wachstum")
		for _, y := range res.YearlyBreakdown {
			writeQuoted(bw,
				strconv.Itoa(y.Year),
				FormatCurrency(y.StartAmount),
				FormatCurrency(y.Contributions),
				FormatCurrency(y.Interest),
				FormatCurrency(y.EndAmount),
				FormatPercent(y.GrowthRate))
		}
	}

	return bw.Flush()
}

// writeQuoted emits one CSV row with every field quoted. encoding/csv only
// quotes fields that need it, so the row is assembled by hand.
func writeQuoted(w *bufio.Writer, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(f, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}
