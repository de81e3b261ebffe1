package ledger

import (
	"fmt"
	"strings"
)

const (
	KindCreate  = "create"
	KindResolve = "resolve"
	KindManual  = "manual"
	KindAdjust  = "adjust"
)

// Ref names the event that caused a ledger write. Scheduled resolutions
// carry no chain position and leave Block/TxHash zero.
type Ref struct {
	Block    uint64
	TxHash   string
	LogIndex uint
	SignalID uint64
	Kind     string
}

// String is the idempotency key: block:tx:signal:kind.
func (r Ref) String() string {
	return fmt.Sprintf("%d:%s:%d:%s", r.Block, strings.ToLower(r.TxHash), r.SignalID, r.Kind)
}

func (r Ref) auditID() string {
	if r.Block == 0 && r.TxHash == "" {
		return fmt.Sprintf("%d-sched", r.SignalID)
	}
	return fmt.Sprintf("%d-%d", r.SignalID, r.Block)
}
