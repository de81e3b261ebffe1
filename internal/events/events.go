package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

const (
	KindSignalCreated         = "SignalCreated"
	KindSignalResolved        = "SignalResolved"
	KindSignalManuallyUpdated = "SignalManuallyUpdated"
	KindWalletAuthorized      = "WalletAuthorized"
	KindWalletUnauthorized    = "WalletUnauthorized"
	KindFidBanned             = "FidBanned"
	KindFidUnbanned           = "FidUnbanned"
	KindWalletBanned          = "WalletBanned"
	KindWalletUnbanned        = "WalletUnbanned"
	KindBackendSignerUpdated  = "BackendSignerUpdated"
	KindResolverUpdated       = "ResolverUpdated"
)

var (
	ErrInvalidEvent = errors.New("events: invalid event")
	ErrUnknownKind  = errors.New("events: unknown event kind")
)

// Meta is the chain position shared by every event.
type Meta struct {
	ChainID        uint64 `json:"chain_id"`
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp int64  `json:"block_timestamp"`
	TxHash         string `json:"transaction_hash"`
	TxIndex        uint   `json:"transaction_index"`
	LogIndex       uint   `json:"log_index"`
}

func (m Meta) EventMeta() Meta { return m }

// Envelope is the wire form: a kind, its chain position and the decoded log args.
type Envelope struct {
	Kind string `json:"kind"`
	Meta
	Args json.RawMessage `json:"args"`
}

type Event interface {
	EventKind() string
	EventMeta() Meta
}

type SignalCreated struct {
	Meta
	SignalID     uint64 `json:"signalId"`
	FID          uint64 `json:"fid"`
	Token        string `json:"token"`
	Direction    bool   `json:"direction"`
	DurationDays uint32 `json:"durationDays"`
	CreatedAt    int64  `json:"createdAt"`
	ExpiresAt    int64  `json:"expiresAt"`
}

func (SignalCreated) EventKind() string { return KindSignalCreated }

type SignalResolved struct {
	Meta
	SignalID    uint64          `json:"signalId"`
	FID         uint64          `json:"fid"`
	MFSDelta    int64           `json:"mfsDelta"`
	NewTotalMFS decimal.Decimal `json:"newTotalMFS"`
}

func (SignalResolved) EventKind() string { return KindSignalResolved }

type SignalManuallyUpdated struct {
	Meta
	SignalID          uint64          `json:"signalId"`
	FID               uint64          `json:"fid"`
	OldEntryMarketCap decimal.Decimal `json:"oldEntryMarketCap"`
	NewEntryMarketCap decimal.Decimal `json:"newEntryMarketCap"`
	OldMFSDelta       int64           `json:"oldMfsDelta"`
	NewMFSDelta       int64           `json:"newMfsDelta"`
	NewTotalMFS       decimal.Decimal `json:"newTotalMFS"`
	Reason            string          `json:"reason"`
}

func (SignalManuallyUpdated) EventKind() string { return KindSignalManuallyUpdated }

type WalletAuthorized struct {
	Meta
	FID    uint64 `json:"fid"`
	Wallet string `json:"wallet"`
}

func (WalletAuthorized) EventKind() string { return KindWalletAuthorized }

type WalletUnauthorized struct {
	Meta
	FID    uint64 `json:"fid"`
	Wallet string `json:"wallet"`
}

func (WalletUnauthorized) EventKind() string { return KindWalletUnauthorized }

// FidBanChanged carries both FidBanned and FidUnbanned.
type FidBanChanged struct {
	Meta
	FID    uint64 `json:"fid"`
	Banned bool   `json:"-"`
}

func (e FidBanChanged) EventKind() string {
	if e.Banned {
		return KindFidBanned
	}
	return KindFidUnbanned
}

// WalletBanChanged carries both WalletBanned and WalletUnbanned.
type WalletBanChanged struct {
	Meta
	Wallet string `json:"wallet"`
	Banned bool   `json:"-"`
}

func (e WalletBanChanged) EventKind() string {
	if e.Banned {
		return KindWalletBanned
	}
	return KindWalletUnbanned
}

type BackendSignerUpdated struct {
	Meta
	OldSigner string `json:"oldSigner"`
	NewSigner string `json:"newSigner"`
}

func (BackendSignerUpdated) EventKind() string { return KindBackendSignerUpdated }

type ResolverUpdated struct {
	Meta
	OldResolver string `json:"oldResolver"`
	NewResolver string `json:"newResolver"`
}

func (ResolverUpdated) EventKind() string { return KindResolverUpdated }

// Decode validates env and returns the typed event with addresses and
// hashes normalized to lower-case hex.
func Decode(env Envelope) (Event, error) {
	meta, err := normalizeMeta(env.Meta)
	if err != nil {
		return nil, err
	}
	args := env.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch env.Kind {
	case KindSignalCreated:
		var ev SignalCreated
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		if ev.SignalID == 0 || ev.FID == 0 || ev.DurationDays == 0 {
			return nil, fmt.Errorf("%w: %s requires signalId, fid and durationDays", ErrInvalidEvent, env.Kind)
		}
		if ev.Token, err = NormalizeAddress(ev.Token); err != nil {
			return nil, err
		}
		if ev.CreatedAt == 0 {
			ev.CreatedAt = meta.BlockTimestamp
		}
		if ev.CreatedAt <= 0 {
			return nil, fmt.Errorf("%w: %s requires createdAt or block_timestamp", ErrInvalidEvent, env.Kind)
		}
		return ev, nil

	case KindSignalResolved:
		var ev SignalResolved
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		if ev.SignalID == 0 {
			return nil, fmt.Errorf("%w: %s requires signalId", ErrInvalidEvent, env.Kind)
		}
		return ev, nil

	case KindSignalManuallyUpdated:
		var ev SignalManuallyUpdated
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		if ev.SignalID == 0 {
			return nil, fmt.Errorf("%w: %s requires signalId", ErrInvalidEvent, env.Kind)
		}
		return ev, nil

	case KindWalletAuthorized, KindWalletUnauthorized:
		var ev WalletAuthorized
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		if ev.Wallet, err = NormalizeAddress(ev.Wallet); err != nil {
			return nil, err
		}
		if env.Kind == KindWalletUnauthorized {
			return WalletUnauthorized(ev), nil
		}
		return ev, nil

	case KindFidBanned, KindFidUnbanned:
		var ev FidBanChanged
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		ev.Banned = env.Kind == KindFidBanned
		if ev.FID == 0 {
			return nil, fmt.Errorf("%w: %s requires fid", ErrInvalidEvent, env.Kind)
		}
		return ev, nil

	case KindWalletBanned, KindWalletUnbanned:
		var ev WalletBanChanged
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		ev.Banned = env.Kind == KindWalletBanned
		if ev.Wallet, err = NormalizeAddress(ev.Wallet); err != nil {
			return nil, err
		}
		return ev, nil

	case KindBackendSignerUpdated:
		var ev BackendSignerUpdated
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		if ev.NewSigner, err = NormalizeAddress(ev.NewSigner); err != nil {
			return nil, err
		}
		ev.OldSigner = normalizeOptionalAddress(ev.OldSigner)
		return ev, nil

	case KindResolverUpdated:
		var ev ResolverUpdated
		if err := unmarshalArgs(args, &ev); err != nil {
			return nil, err
		}
		ev.Meta = meta
		if ev.NewResolver, err = NormalizeAddress(ev.NewResolver); err != nil {
			return nil, err
		}
		ev.OldResolver = normalizeOptionalAddress(ev.OldResolver)
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
}

func unmarshalArgs(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode args: %v", ErrInvalidEvent, err)
	}
	return nil
}

func normalizeMeta(m Meta) (Meta, error) {
	if m.BlockNumber == 0 {
		return m, fmt.Errorf("%w: block_number is required", ErrInvalidEvent)
	}
	hash, err := NormalizeTxHash(m.TxHash)
	if err != nil {
		return m, err
	}
	m.TxHash = hash
	return m, nil
}

// NormalizeAddress validates a 20-byte hex address and lower-cases it.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: bad address %q", ErrInvalidEvent, s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}

func normalizeOptionalAddress(s string) string {
	if out, err := NormalizeAddress(s); err == nil {
		return out
	}
	return ""
}

// NormalizeTxHash validates a 32-byte 0x-prefixed hash and lower-cases it.
func NormalizeTxHash(s string) (string, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != common.HashLength {
		return "", fmt.Errorf("%w: bad transaction hash %q", ErrInvalidEvent, s)
	}
	return common.BytesToHash(b).Hex(), nil
}
