package journal

import (
	"context"
	"log"

	"github.com/google/uuid"

	"backtest-core/internal/engine"
	"backtest-core/internal/ledger"
)

// Recorder subscribes to an engine's order updates and writes finalized
// orders and their fills into the journal. Persistence failures are logged,
// never allowed to stop the replay.
type Recorder struct {
	db *DB
}

func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// Attach registers the recorder on the engine's order stream.
func (r *Recorder) Attach(ctx context.Context, ex engine.Exchange) {
	ex.WatchOrders("", func(o ledger.Order) error {
		if !o.IsFinal() {
			return nil
		}
		if err := r.db.RecordOrder(ctx, o); err != nil {
			log.Printf("journal: %v", err)
			return nil
		}
		if o.Status == ledger.StatusClosed && o.Filled > 0 {
			trade := Trade{
				ID:      uuid.NewString(),
				OrderID: o.ID.String(),
				Symbol:  o.Symbol,
				Side:    o.Side,
				Price:   o.Average,
				Qty:     o.Filled,
				Fee:     o.Fee.Cost,
				Time:    o.LastUpdate,
			}
			if err := r.db.RecordTrade(ctx, trade); err != nil {
				log.Printf("journal: %v", err)
			}
		}
		return nil
	})
}
