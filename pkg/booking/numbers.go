package booking

import (
	"fmt"
	"time"
)

const (
	prefixTicket  = "PKT"
	prefixSlip    = "SLP"
	prefixInvoice = "INV"

	numberDateLayout = "20060102"
)

// FormatNumber renders a document number such as PKT-20250410-00042.
func FormatNumber(prefix string, at time.Time, id uint64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, at.UTC().Format(numberDateLayout), id)
}
