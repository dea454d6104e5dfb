package vendors

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteStatementCSV renders a vendor's ledger entries as a CSV statement.
// Amounts are grouped for readability (12,500.00) the way the finance desk
// reads them.
func WriteStatementCSV(w io.Writer, vendor Vendor, entries []LedgerEntry) error {
	printer := message.NewPrinter(language.English)
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Vendor", vendor.Name}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Date", "Type", "Reference", "Debit", "Credit", "Running Balance", "Note"}); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.CreatedAt.Format("2006-01-02 15:04"),
			string(e.EntryType),
			fmt.Sprintf("%d", e.ReferenceID),
			printer.Sprintf("%.2f", e.Debit),
			printer.Sprintf("%.2f", e.Credit),
			printer.Sprintf("%.2f", e.RunningBalance),
			e.Note,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
