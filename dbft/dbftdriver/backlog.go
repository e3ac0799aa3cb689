package dbftdriver

import (
	"cmp"
	"slices"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// backlog holds verified messages from rounds the engine has not reached yet.
//
// Each validator has its own queue, ordered by round and then message kind.
// Queues are capped per validator so one sender cannot crowd out the rest.
// When a queue is full, the message furthest in the future is dropped.
type backlog struct {
	limit int
	byVal map[dbftconsensus.ValidatorID][]dbftconsensus.SignedMessage
}

func newBacklog(limitPerValidator int) *backlog {
	return &backlog{
		limit: limitPerValidator,
		byVal: make(map[dbftconsensus.ValidatorID][]dbftconsensus.SignedMessage),
	}
}

func compareRound(a, b dbftconsensus.SignedMessage) int {
	return cmp.Or(
		cmp.Compare(a.Height, b.Height),
		cmp.Compare(a.View, b.View),
		cmp.Compare(a.Kind(), b.Kind()),
	)
}

// Add stores sm and reports whether it was kept.
func (b *backlog) Add(sm dbftconsensus.SignedMessage) bool {
	q := b.byVal[sm.Validator]

	i, found := slices.BinarySearchFunc(q, sm, compareRound)
	if found {
		// Same round and kind from the same validator; the engine would
		// reject the second one as a duplicate anyway.
		return false
	}
	if len(q) >= b.limit && i == len(q) {
		return false
	}

	q = slices.Insert(q, i, sm)
	if len(q) > b.limit {
		q = q[:b.limit]
	}
	b.byVal[sm.Validator] = q
	return true
}

// Ready removes and returns every message for the given height and view,
// and discards messages from earlier rounds.
// Messages are ordered by kind, then by validator.
func (b *backlog) Ready(height uint64, view dbftconsensus.ViewNumber) []dbftconsensus.SignedMessage {
	var out []dbftconsensus.SignedMessage

	for id, q := range b.byVal {
		n := 0
		for n < len(q) && (q[n].Height < height || (q[n].Height == height && q[n].View <= view)) {
			if q[n].Height == height && q[n].View == view {
				out = append(out, q[n])
			}
			n++
		}

		if n == len(q) {
			delete(b.byVal, id)
			continue
		}
		b.byVal[id] = slices.Delete(q, 0, n)
	}

	slices.SortFunc(out, func(x, y dbftconsensus.SignedMessage) int {
		return cmp.Or(
			cmp.Compare(x.Kind(), y.Kind()),
			cmp.Compare(x.Validator, y.Validator),
		)
	})
	return out
}

// Len returns the total number of held messages.
func (b *backlog) Len() int {
	n := 0
	for _, q := range b.byVal {
		n += len(q)
	}
	return n
}
