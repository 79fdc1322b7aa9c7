package sdk

import "time"

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Backoff yields reconnect delays that start at Initial, double after each
// failure and stop growing at Max. The zero value uses the defaults.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// Next returns the delay before the coming attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	initial, max := b.Initial, b.Max
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if b.next <= 0 {
		b.next = initial
	}
	d := b.next
	if d > max {
		d = max
	}
	b.next = d * 2
	if b.next > max {
		b.next = max
	}
	return d
}

// Reset rewinds the sequence after a successful connection.
func (b *Backoff) Reset() { b.next = 0 }
