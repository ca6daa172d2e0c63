package importer

import (
	"strings"

	"churchcoin-backend/internal/models"
)

// Header fingerprints for the three statement layouts we recognise. A layout
// matches when every fingerprint header is present, in any order.
var formatFingerprints = []struct {
	format  models.BankFormat
	headers []string
}{
	{models.FormatBarclays, []string{"number", "date", "account", "amount", "subcategory", "memo"}},
	{models.FormatHSBC, []string{"date", "type", "description", "paid out", "paid in", "balance"}},
	{models.FormatMetro, []string{"date", "transaction", "money in", "money out", "balance"}},
}

// DetectFormat classifies the statement layout from its header names.
// Case-insensitive and whitespace-tolerant; anything unrecognised is generic.
func DetectFormat(headers []string) models.BankFormat {
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[normalizeHeader(h)] = true
	}

	for _, fp := range formatFingerprints {
		matched := true
		for _, want := range fp.headers {
			if !have[want] {
				matched = false
				break
			}
		}
		if matched {
			return fp.format
		}
	}
	return models.FormatGeneric
}

func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(h))), " ")
}
