package sequence

import (
	"context"
	"sync"

	"github.com/roach88/hybridseq/internal/item"
)

// Ticket is the handle for one queued mutation.
type Ticket struct {
	// ID is the item the mutation targets.
	ID string

	once sync.Once
	done chan struct{}
	item item.Item
	err  error
}

func newTicket(id string) *Ticket {
	return &Ticket{ID: id, done: make(chan struct{})}
}

// Done is closed once the mutation has been applied or has failed.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the mutation resolves or ctx ends. For inserts the
// returned item carries the committed order key.
func (t *Ticket) Wait(ctx context.Context) (item.Item, error) {
	select {
	case <-t.done:
		return t.item, t.err
	case <-ctx.Done():
		return item.Item{}, ctx.Err()
	}
}

func (t *Ticket) resolve(it item.Item, err error) {
	t.once.Do(func() {
		t.item = it
		t.err = err
		close(t.done)
	})
}
