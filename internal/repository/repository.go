package repository

import (
	"context"
	"errors"
	"time"

	"memetic/internal/models"
)

// ErrConflict marks a transaction that lost a race (serialization failure,
// deadlock, unique violation) and may be retried as a whole.
var ErrConflict = errors.New("repository: transaction conflict")

// LedgerTx is the statement set the ledger runs inside a single transaction.
// Lookups return (nil, nil) when the row does not exist.
type LedgerTx interface {
	GetSignalForUpdate(ctx context.Context, signalID uint64) (*models.Signal, error)
	InsertSignalIgnore(ctx context.Context, item *models.Signal) (bool, error)
	UpdateSignalOutcome(ctx context.Context, item *models.Signal) error

	LockAuthorScore(ctx context.Context, fid uint64) (*models.AuthorScore, error)
	SaveAuthorScore(ctx context.Context, item *models.AuthorScore) error
	InsertScoreApplication(ctx context.Context, item *models.ScoreApplication) (bool, error)

	InsertSignalResolution(ctx context.Context, item *models.SignalResolution) (bool, error)
	InsertSignalManualUpdate(ctx context.Context, item *models.SignalManualUpdate) (bool, error)
	GetSignalManualUpdate(ctx context.Context, id string) (*models.SignalManualUpdate, error)

	IncrementDailySignalCount(ctx context.Context, fid uint64, day int64) error
	IncrementFidStats(ctx context.Context, fid uint64, delta FidStatsDelta) error
}

type LedgerRepository interface {
	WithLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error
	GetSignal(ctx context.Context, signalID uint64) (*models.Signal, error)
	GetAuthorScore(ctx context.Context, fid uint64) (*models.AuthorScore, error)
}

// ChainRecordRepository stores permission/admin events with insert-or-ignore semantics.
type ChainRecordRepository interface {
	InsertWalletAuthorization(ctx context.Context, item *models.WalletAuthorization) (bool, error)
	InsertWalletUnauthorization(ctx context.Context, item *models.WalletUnauthorization) (bool, error)
	InsertFidBan(ctx context.Context, item *models.FidBan) (bool, error)
	InsertWalletBan(ctx context.Context, item *models.WalletBan) (bool, error)
	InsertBackendSignerUpdate(ctx context.Context, item *models.BackendSignerUpdate) (bool, error)
	InsertResolverUpdate(ctx context.Context, item *models.ResolverUpdate) (bool, error)
}

type FailedJobRepository interface {
	InsertFailedJob(ctx context.Context, item *models.FailedResolutionJob) error
	GetFailedJob(ctx context.Context, id string) (*models.FailedResolutionJob, error)
	ListFailedJobs(ctx context.Context, params ListFailedJobsParams) ([]models.FailedResolutionJob, error)
	CountFailedJobs(ctx context.Context, params ListFailedJobsParams) (int64, error)
	MarkFailedJobRequeued(ctx context.Context, id string, at time.Time) error
}

// RejectedEventRepository keeps events the ledger refused for good. Ids are
// chain positions so redelivery is ignored.
type RejectedEventRepository interface {
	InsertRejectedEvent(ctx context.Context, item *models.RejectedEvent) (bool, error)
	ListRejectedEvents(ctx context.Context, params ListRejectedEventsParams) ([]models.RejectedEvent, error)
	CountRejectedEvents(ctx context.Context, params ListRejectedEventsParams) (int64, error)
}

// Repository is the unified store used by the service wiring and the read API.
type Repository interface {
	LedgerRepository
	ChainRecordRepository
	FailedJobRepository
	RejectedEventRepository

	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)
	ListExpiredActiveSignals(ctx context.Context, expiredBefore int64, limit int) ([]models.Signal, error)

	ListSignalResolutions(ctx context.Context, params ListAuditParams) ([]models.SignalResolution, error)
	CountSignalResolutions(ctx context.Context, params ListAuditParams) (int64, error)
	ListSignalManualUpdates(ctx context.Context, params ListAuditParams) ([]models.SignalManualUpdate, error)
	CountSignalManualUpdates(ctx context.Context, params ListAuditParams) (int64, error)

	GetFidStats(ctx context.Context, fid uint64) (*models.FidStats, error)
	ListTopAuthors(ctx context.Context, limit int) ([]models.AuthorScore, error)

	UpsertToken(ctx context.Context, item *models.Token) error
	GetToken(ctx context.Context, address string) (*models.Token, error)

	UpsertUsers(ctx context.Context, items []models.User) error
	GetUser(ctx context.Context, fid uint64) (*models.User, error)
	ListStaleAuthorFIDs(ctx context.Context, updatedBefore time.Time, limit int) ([]uint64, error)

	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error

	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)

	GetSystemState(ctx context.Context, now time.Time, day int64) (SystemState, error)
}

// FidStatsDelta is added column-wise to an author's fid_stats row.
type FidStatsDelta struct {
	Total         int64
	Active        int64
	Won           int64
	Lost          int64
	Indeterminate int64
}

type ListSignalsParams struct {
	Limit        int
	Offset       int
	FID          *uint64
	Status       *string
	TokenAddress *string
	OrderBy      string
	Asc          *bool
}

type ListAuditParams struct {
	Limit    int
	Offset   int
	SignalID *uint64
	FID      *uint64
	OrderBy  string
	Asc      *bool
}

type ListFailedJobsParams struct {
	Limit   int
	Offset  int
	Status  *string
	OrderBy string
	Asc     *bool
}

type ListRejectedEventsParams struct {
	Limit    int
	Offset   int
	Kind     *string
	SignalID *uint64
	Asc      *bool
}

type SystemState struct {
	TotalSignals     int64     `json:"total_signals"`
	ActiveSignals    int64     `json:"active_signals"`
	ResolvedSignals  int64     `json:"resolved_signals"`
	CorrectedSignals int64     `json:"corrected_signals"`
	SignalsToday     int64     `json:"signals_today"`
	SignalsLast24h   int64     `json:"signals_last_24h"`
	TotalAuthors     int64     `json:"total_authors"`
	TotalUsers       int64     `json:"total_users"`
	BannedFids       int64     `json:"banned_fids"`
	BannedWallets    int64     `json:"banned_wallets"`
	ParkedJobs       int64     `json:"parked_jobs"`
	RejectedEvents   int64     `json:"rejected_events"`
	Day              int64     `json:"day"`
	GeneratedAt      time.Time `json:"generated_at"`
}
