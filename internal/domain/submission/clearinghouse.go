package submission

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/domain/encounter"
	"github.com/ehr/rcm/internal/domain/reference"
	"github.com/ehr/rcm/internal/platform/clearinghouse"
)

// Uploader sends a written batch file to the clearinghouse.
type Uploader interface {
	Upload(ctx context.Context, path, filename string) (string, error)
}

type ClearinghouseConfig struct {
	WorkDir    string
	Submitter  clearinghouse.Party
	Receiver   clearinghouse.Party
	Production bool
}

// ClearinghouseSubmitter writes an 837P batch into the work directory and
// uploads it.
type ClearinghouseSubmitter struct {
	cfg      ClearinghouseConfig
	uploader Uploader
	now      func() time.Time
	newID    func() uuid.UUID
	logger   zerolog.Logger
}

func NewClearinghouseSubmitter(cfg ClearinghouseConfig, uploader Uploader, logger zerolog.Logger) *ClearinghouseSubmitter {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &ClearinghouseSubmitter{
		cfg:      cfg,
		uploader: uploader,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
		logger:   logger.With().Str("component", "clearinghouse").Logger(),
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// BatchFilename is 837P_<org>_<timestamp>_<batch>.txt. The batch suffix
// keeps runs for the same organization within one second apart.
func BatchFilename(org *reference.Organization, at time.Time, batchID uuid.UUID) string {
	name := unsafeFileChars.ReplaceAllString(org.Name, "_")
	return fmt.Sprintf("837P_%s_%s_%x.txt", name, at.Format("20060102150405"), batchID[:4])
}

// ControlNumber derives the nine-digit ISA control number from the batch id.
func ControlNumber(batchID uuid.UUID) int {
	return int(binary.BigEndian.Uint32(batchID[:4])%999_999_999) + 1
}

// Submit returns an error only when the batch file could not be written.
// Upload failures are reported in the Result with the file still on disk.
func (s *ClearinghouseSubmitter) Submit(ctx context.Context, encs []*encounter.Encounter, org *reference.Organization) (*Result, error) {
	now := s.now()
	batchID := s.newID()
	batch := clearinghouse.Batch{
		ControlNumber: ControlNumber(batchID),
		Created:       now,
		Production:    s.cfg.Production,
		Submitter:     s.cfg.Submitter,
		Receiver:      s.cfg.Receiver,
		BillingProvider: clearinghouse.Party{
			Name:  org.Name,
			ID:    org.NPI,
			TaxID: org.TaxID,
		},
	}
	for _, e := range encs {
		claimID := e.ID.String()
		if e.ClaimID != nil {
			claimID = e.ClaimID.String()
		}
		batch.Claims = append(batch.Claims, clearinghouse.ClaimEntry{
			ClaimID:     claimID,
			TotalCharge: e.TotalCharge,
			ServiceDate: e.DateOfService,
			Subscriber: clearinghouse.Subscriber{
				FirstName: e.PatientFirstName,
				LastName:  e.PatientLastName,
				MemberID:  e.MemberID,
				PayerID:   e.PayerCode,
				PayerName: e.PayerName,
			},
		})
	}

	filename := BatchFilename(org, now, batchID)
	path := filepath.Join(s.cfg.WorkDir, filename)
	if err := writeBatch(path, batch); err != nil {
		return nil, err
	}

	res := &Result{EDIFilePath: path, Filename: filename}
	remote, err := s.uploader.Upload(ctx, path, filename)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", filename).Msg("upload batch")
		res.Error = err.Error()
		return res, nil
	}
	res.Success = true
	res.RemotePath = remote
	return res, nil
}

func writeBatch(path string, batch clearinghouse.Batch) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create batch file: %w", err)
	}
	if err := batch.Encode(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("sync batch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close batch file: %w", err)
	}
	return nil
}
