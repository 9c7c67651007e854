package remittance

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ehr/rcm/internal/domain/payment"
)

// carcStatuses maps Claim Adjustment Reason Codes to remittance outcomes.
var carcStatuses = map[string]string{
	"242": "Paid",
	"2":   "Paid",
	"1":   "Deductible",
	"0":   "Denial",
}

const unknownStatus = "unknown"

// CARCStatus returns the outcome label for one code.
func CARCStatus(code string) string {
	if s, ok := carcStatuses[strings.TrimSpace(code)]; ok {
		return s
	}
	return unknownStatus
}

// IsPaidCode reports whether code marks a paid line. Only paid lines are
// grouped.
func IsPaidCode(code string) bool {
	code = strings.TrimSpace(code)
	return code == "2" || code == "242"
}

// StatusLabel is the humanized, de-duplicated join of each code's outcome,
// in code order.
func StatusLabel(codes []string) string {
	seen := make(map[string]bool, len(codes))
	var labels []string
	for _, c := range codes {
		l := humanize(CARCStatus(c))
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	return strings.Join(labels, ", ")
}

func humanize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// PaymentStatus derives a payment outcome from the codes of one record:
// paid beats denial beats deductible; anything else is pending.
func PaymentStatus(codes []string) payment.Status {
	var denial bool
	for _, c := range codes {
		switch strings.TrimSpace(c) {
		case "2", "242":
			return payment.StatusSucceeded
		case "0":
			denial = true
		}
	}
	if denial {
		return payment.StatusFailed
	}
	return payment.StatusPending
}

var orgSuffix = regexp.MustCompile(`\s*\(\d+\)\s*$`)

// CleanOrganizationName strips a trailing parenthetical account number,
// "Acme Corp (292008)" becoming "Acme Corp".
func CleanOrganizationName(name string) string {
	return strings.TrimSpace(orgSuffix.ReplaceAllString(normalizeSpace(name), ""))
}

var nonAmount = regexp.MustCompile(`[^0-9.]`)

// ParseAmount drops every character except digits and the decimal point
// and reads what is left. Blank input is zero.
func ParseAmount(s string) decimal.Decimal {
	s = nonAmount.ReplaceAllString(s, "")
	if first := strings.IndexByte(s, '.'); first >= 0 {
		if second := strings.IndexByte(s[first+1:], '.'); second >= 0 {
			s = s[:first+1+second]
		}
	}
	if s == "" || s == "." {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func sortedCodes(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
