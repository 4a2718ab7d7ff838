package dump

import "openletter/internal/nation/models"

// DefaultBatchSize is the number of records written per upsert.
const DefaultBatchSize = 500

// Batcher groups entries into fixed-size batches in arrival order.
type Batcher struct {
	size int
	buf  []models.Entry
}

func NewBatcher(size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{size: size, buf: make([]models.Entry, 0, size)}
}

// Add appends e and returns a full batch once size entries have accumulated.
// The returned slice is owned by the caller.
func (b *Batcher) Add(e models.Entry) []models.Entry {
	b.buf = append(b.buf, e)
	if len(b.buf) < b.size {
		return nil
	}
	return b.take()
}

// Flush returns whatever is left, or nil.
func (b *Batcher) Flush() []models.Entry {
	if len(b.buf) == 0 {
		return nil
	}
	return b.take()
}

func (b *Batcher) take() []models.Entry {
	out := b.buf
	b.buf = make([]models.Entry, 0, b.size)
	return out
}
