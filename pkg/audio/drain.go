package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it when a subscriber stops consuming but the producer still owns the
// channel.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
