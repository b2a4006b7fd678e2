package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a streaming channel's data is not
// needed, e.g. coach audio when no sink is attached.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
