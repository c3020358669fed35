package bulk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"quorum/console/internal/document"
	"quorum/console/internal/issuance"
	"quorum/console/internal/qr"
)

type Mode string

const (
	ModePDF         Mode = "pdf"
	ModeSpreadsheet Mode = "xlsx"
)

func ParseMode(value string) (Mode, error) {
	switch value {
	case "pdf":
		return ModePDF, nil
	case "xlsx", "spreadsheet":
		return ModeSpreadsheet, nil
	default:
		return "", errInvalidMode
	}
}

type ItemStatus string

const (
	StatusSuccess        ItemStatus = "success"
	StatusServerFailed   ItemStatus = "server_failed"
	StatusEncodingFailed ItemStatus = "encoding_failed"
)

type ItemOutcome struct {
	UserID int64      `json:"user_id"`
	Status ItemStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

type Tier string

const (
	TierSuccess Tier = "success"
	TierPartial Tier = "partial"
	TierFailure Tier = "failure"
)

// RunReport is the aggregated result of one bulk run. The artifact is
// present only when at least one item succeeded.
type RunReport struct {
	ID         uuid.UUID
	UnitName   string
	Mode       Mode
	Requested  int
	Succeeded  int
	Failed     int
	Outcomes   []ItemOutcome
	Artifact   []byte
	Filename   string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *RunReport) Tier() Tier {
	switch {
	case r.Failed == 0:
		return TierSuccess
	case r.Succeeded > 0:
		return TierPartial
	default:
		return TierFailure
	}
}

// Errors returns the failed outcomes only, for itemized reporting.
func (r *RunReport) Errors() []ItemOutcome {
	var failed []ItemOutcome
	for _, outcome := range r.Outcomes {
		if outcome.Status != StatusSuccess {
			failed = append(failed, outcome)
		}
	}
	return failed
}

var (
	ErrNotConfirmed = errors.New("bulk run not confirmed")
	ErrNoSelection  = errors.New("no residents selected")
	errInvalidMode  = errors.New("invalid mode")
)

type Issuer interface {
	IssueBulk(ctx context.Context, bearer string, userIDs []int64, expirationHours int) (*issuance.BulkTokens, error)
}

type EncodeFunc func(payloadURL string, cfg qr.Config) ([]byte, error)

const defaultEncodeWorkers = 4

// Orchestrator drives one bulk credential run: confirmation gate, the
// single issuance call, bounded-concurrency per-item encoding, and
// composition of the final artifact.
type Orchestrator struct {
	Issuer   Issuer
	Encode   EncodeFunc
	QRConfig qr.Config
	Workers  int
	Now      func() time.Time
}

func New(issuer Issuer, workers int) *Orchestrator {
	if workers <= 0 {
		workers = defaultEncodeWorkers
	}
	return &Orchestrator{
		Issuer:   issuer,
		Encode:   qr.Encode,
		QRConfig: qr.DefaultConfig(),
		Workers:  workers,
		Now:      time.Now,
	}
}

type Request struct {
	UnitName        string
	UserIDs         []int64
	ExpirationHours int
	Mode            Mode
	Confirmed       bool
	Bearer          string
	OnProgress      func(done, total int)
}

// Run executes a bulk run end to end. Fatal failures (rate limiting,
// transport errors, missing credentials) return an error and nothing is
// treated as issued. Per-item failures are collected in the report and
// never abort the batch. A cancelled context discards all work, including
// already-encoded items.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunReport, error) {
	if !req.Confirmed {
		return nil, ErrNotConfirmed
	}
	userIDs := dedupe(req.UserIDs)
	if len(userIDs) == 0 {
		return nil, ErrNoSelection
	}
	expirationHours := req.ExpirationHours
	if expirationHours <= 0 {
		expirationHours = 48
	}

	startedAt := o.Now().UTC()
	issued, err := o.Issuer.IssueBulk(ctx, req.Bearer, userIDs, expirationHours)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	outcomeByUser := make(map[int64]ItemOutcome, len(userIDs))
	for _, failure := range issued.Failures {
		outcomeByUser[failure.UserID] = ItemOutcome{
			UserID: failure.UserID,
			Status: StatusServerFailed,
			Detail: failure.Reason,
		}
	}

	report := &RunReport{
		ID:        uuid.New(),
		UnitName:  req.UnitName,
		Mode:      req.Mode,
		Requested: len(userIDs),
		StartedAt: startedAt,
	}

	switch req.Mode {
	case ModeSpreadsheet:
		// the workbook embeds no images, so per-item encoding is skipped
		for _, token := range issued.Tokens {
			outcomeByUser[token.UserID] = ItemOutcome{UserID: token.UserID, Status: StatusSuccess}
		}
		if len(issued.Tokens) > 0 {
			artifact, err := document.ExportWorkbook(issued.Tokens)
			if err != nil {
				return nil, err
			}
			report.Artifact = artifact
			report.Filename = document.WorkbookFilename(req.UnitName, startedAt)
		}
	default:
		images, err := o.encodeAll(ctx, issued.Tokens, req.OnProgress)
		if err != nil {
			return nil, err
		}
		var items []document.Item
		for i, token := range issued.Tokens {
			if images[i] == nil {
				continue
			}
			outcomeByUser[token.UserID] = ItemOutcome{UserID: token.UserID, Status: StatusSuccess}
			items = append(items, document.Item{
				Image:     images[i],
				UnitName:  req.UnitName,
				FullName:  token.FullName(),
				Apartment: token.ApartmentNumber,
			})
		}
		for i, token := range issued.Tokens {
			if images[i] == nil {
				outcomeByUser[token.UserID] = ItemOutcome{
					UserID: token.UserID,
					Status: StatusEncodingFailed,
					Detail: "qr encoding failed",
				}
			}
		}
		if len(items) > 0 {
			artifact, err := document.ComposePDF(items, document.DefaultPageConfig(req.UnitName, startedAt))
			if err != nil {
				return nil, err
			}
			report.Artifact = artifact
			report.Filename = document.DocumentFilename(req.UnitName, startedAt)
		}
	}

	// exactly one outcome per requested user, in request order; users the
	// backend never mentioned count as server failures
	for _, userID := range userIDs {
		outcome, ok := outcomeByUser[userID]
		if !ok {
			outcome = ItemOutcome{UserID: userID, Status: StatusServerFailed, Detail: "missing from response"}
		}
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Status == StatusSuccess {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	report.FinishedAt = o.Now().UTC()
	return report, nil
}

// encodeAll renders QR images for all tokens with a bounded worker pool.
// Results are indexed by token position so document order follows the
// server-returned order regardless of completion order. A nil slot marks
// an encoding failure for that token.
func (o *Orchestrator) encodeAll(ctx context.Context, tokens []issuance.Token, onProgress func(done, total int)) ([][]byte, error) {
	images := make([][]byte, len(tokens))
	if len(tokens) == 0 {
		return images, nil
	}

	workers := o.Workers
	if workers <= 0 {
		workers = defaultEncodeWorkers
	}
	sem := make(chan struct{}, workers)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for i, token := range tokens {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, payloadURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			image, err := o.Encode(payloadURL, o.QRConfig)
			mu.Lock()
			if err == nil {
				images[index] = image
			}
			done++
			progress := done
			mu.Unlock()
			if onProgress != nil {
				onProgress(progress, len(tokens))
			}
		}(i, token.AutoLoginURL)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func dedupe(userIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(userIDs))
	var unique []int64
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
