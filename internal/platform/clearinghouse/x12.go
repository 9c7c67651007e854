// Package clearinghouse writes X12 837P professional claim batches and
// uploads them to a clearinghouse over HTTP.
package clearinghouse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	segmentTerminator = "~"
	elementSeparator  = "*"
	componentSep      = ":"
)

// Party identifies a submitter, receiver or billing provider.
type Party struct {
	Name  string
	ID    string // ETIN for submitter/receiver, NPI for the billing provider
	TaxID string
}

type Subscriber struct {
	FirstName string
	LastName  string
	MemberID  string
	PayerID   string
	PayerName string
}

// ClaimEntry is one encounter billed in the batch.
type ClaimEntry struct {
	ClaimID     string
	TotalCharge decimal.Decimal
	ServiceDate time.Time
	Subscriber  Subscriber
}

// Batch is one 837P interchange holding every claim of a submission run.
type Batch struct {
	ControlNumber   int
	Created         time.Time
	Production      bool
	Submitter       Party
	Receiver        Party
	BillingProvider Party
	Claims          []ClaimEntry
}

type segmentWriter struct {
	w     *bufio.Writer
	count int
	err   error
}

func (s *segmentWriter) seg(elems ...string) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.WriteString(strings.Join(elems, elementSeparator) + segmentTerminator + "\n")
	s.count++
}

// Encode writes the batch as an X12 005010X222A1 interchange.
func (b Batch) Encode(w io.Writer) error {
	if len(b.Claims) == 0 {
		return fmt.Errorf("batch has no claims")
	}
	sw := &segmentWriter{w: bufio.NewWriter(w)}
	ctl := fmt.Sprintf("%09d", b.ControlNumber)
	group := fmt.Sprintf("%d", b.ControlNumber)
	usage := "T"
	if b.Production {
		usage = "P"
	}

	sw.seg("ISA", "00", pad("", 10), "00", pad("", 10),
		"ZZ", pad(b.Submitter.ID, 15), "ZZ", pad(b.Receiver.ID, 15),
		b.Created.Format("060102"), b.Created.Format("1504"),
		"^", "00501", ctl, "0", usage, componentSep)
	sw.seg("GS", "HC", b.Submitter.ID, b.Receiver.ID,
		b.Created.Format("20060102"), b.Created.Format("1504"), group, "X", "005010X222A1")

	// Segments from ST through SE are counted for SE01.
	start := sw.count
	sw.seg("ST", "837", "0001", "005010X222A1")
	sw.seg("BHT", "0019", "00", ctl, b.Created.Format("20060102"), b.Created.Format("1504"), "CH")
	sw.seg("NM1", "41", "2", clean(b.Submitter.Name), "", "", "", "", "46", b.Submitter.ID)
	sw.seg("NM1", "40", "2", clean(b.Receiver.Name), "", "", "", "", "46", b.Receiver.ID)

	sw.seg("HL", "1", "", "20", "1")
	sw.seg("NM1", "85", "2", clean(b.BillingProvider.Name), "", "", "", "", "XX", b.BillingProvider.ID)
	if b.BillingProvider.TaxID != "" {
		sw.seg("REF", "EI", b.BillingProvider.TaxID)
	}

	for i, c := range b.Claims {
		sw.seg("HL", fmt.Sprintf("%d", i+2), "1", "22", "0")
		sw.seg("SBR", "P", "18", "", "", "", "", "", "", "CI")
		sw.seg("NM1", "IL", "1", clean(c.Subscriber.LastName), clean(c.Subscriber.FirstName), "", "", "", "MI", c.Subscriber.MemberID)
		sw.seg("NM1", "PR", "2", clean(c.Subscriber.PayerName), "", "", "", "", "PI", c.Subscriber.PayerID)
		sw.seg("CLM", c.ClaimID, c.TotalCharge.StringFixed(2), "", "", "11"+componentSep+"B"+componentSep+"1", "Y", "A", "Y", "Y")
		sw.seg("DTP", "472", "D8", c.ServiceDate.Format("20060102"))
	}

	sw.seg("SE", fmt.Sprintf("%d", sw.count-start+1), "0001")
	sw.seg("GE", "1", group)
	sw.seg("IEA", "1", ctl)

	if sw.err != nil {
		return sw.err
	}
	return sw.w.Flush()
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// clean strips delimiter characters from free text.
func clean(s string) string {
	r := strings.NewReplacer(segmentTerminator, "", elementSeparator, "", componentSep, "", "^", "")
	return strings.ToUpper(strings.TrimSpace(r.Replace(s)))
}
