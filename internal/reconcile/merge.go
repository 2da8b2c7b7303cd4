package reconcile

import (
	"github.com/samber/lo"

	"github.com/rickgao/drawsync/internal/model"
)

// Result is the outcome of a Merge.
type Result struct {
	Entries []model.Entry

	// Upgraded maps placeholder keys (deploy hashes) to the canonical
	// request id of the backend record that replaced them.
	Upgraded map[string]string

	// LocalOnly counts awaiting tickets kept because the backend does not
	// report them yet.
	LocalOnly int
}

// Merge combines a backend snapshot with the current entries:
//
//  1. Terminal backend tickets never await fulfillment.
//  2. Pending backend tickets keep the previous local awaiting flag; unknown
//     ones are awaiting only if live contains them.
//  3. Local tickets absent from the snapshot and still awaiting are kept,
//     ahead of the backend list.
//  4. Entries are unique by request id; backend entries win.
//
// A placeholder whose deploy hash matches a backend record's entry deploy
// hash is replaced by that record, which inherits its local state.
func Merge(snapshot, current []model.Entry, live *Live) Result {
	prev := lo.KeyBy(current, func(e model.Entry) string { return e.RequestID })

	placeholders := lo.KeyBy(
		lo.Filter(current, func(e model.Entry, _ int) bool { return e.IsPlaceholder }),
		func(e model.Entry) string { return e.RequestID },
	)

	backend := lo.UniqBy(snapshot, func(e model.Entry) string { return e.RequestID })
	upgraded := make(map[string]string)

	merged := lo.Map(backend, func(b model.Entry, _ int) model.Entry {
		local, known := prev[b.RequestID]
		if !known && b.Tx.Entry != "" {
			if ph, ok := placeholders[b.Tx.Entry]; ok && ph.RequestID != b.RequestID {
				local, known = ph, true
				upgraded[ph.RequestID] = b.RequestID
			}
		}

		if known {
			b = b.WithLocal(local)
		}
		b.IsPlaceholder = false

		switch {
		case b.Status.IsTerminal():
			b.AwaitingFulfillment = false
		case known:
			b.AwaitingFulfillment = local.AwaitingFulfillment
		default:
			b.AwaitingFulfillment = live.Contains(b.RequestID)
		}
		return b.Normalize()
	})

	backendIDs := lo.SliceToMap(merged, func(e model.Entry) (string, struct{}) {
		return e.RequestID, struct{}{}
	})

	localOnly := lo.Filter(current, func(e model.Entry, _ int) bool {
		if _, reported := backendIDs[e.RequestID]; reported {
			return false
		}
		if _, replaced := upgraded[e.RequestID]; replaced {
			return false
		}
		return e.AwaitingFulfillment
	})
	localOnly = lo.Map(localOnly, func(e model.Entry, _ int) model.Entry { return e.Normalize() })

	entries := lo.UniqBy(append(localOnly, merged...), func(e model.Entry) string { return e.RequestID })

	return Result{
		Entries:   entries,
		Upgraded:  upgraded,
		LocalOnly: len(localOnly),
	}
}
