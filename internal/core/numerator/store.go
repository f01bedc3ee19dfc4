package numerator

import "context"

// CounterStore persists one monotonically increasing "next number to issue" per class.
// The persisted value is always >= 1 and never decreases.
//
// Implementations perform no mutual exclusion. Advance and ForceTo must be called
// while the caller holds the class lock from the lock manager.
type CounterStore interface {
	// Peek returns the stored value without advancing it. Missing or corrupt
	// storage is repaired to 1 and persisted before returning.
	Peek(ctx context.Context, class Class) (int, error)

	// Advance returns the number to assign now and persists that number + 1.
	Advance(ctx context.Context, class Class) (int, error)

	// ForceTo sets the stored value to max(current, candidateNext) and returns the result.
	ForceTo(ctx context.Context, class Class, candidateNext int) (int, error)
}
