package resource

// A capacity of zero means no explicit limit was configured. Every helper in
// this package treats it as unbounded rather than full.

// IsUnbounded reports whether capacity carries no explicit limit.
func IsUnbounded(capacity int) bool {
	return capacity == 0
}

// Remaining returns capacity minus allocated. It may be negative when the
// cache has observed more allocations than the configured capacity.
// Remaining is meaningless for unbounded capacity; callers check IsUnbounded first.
func Remaining(capacity, allocated int) int {
	return capacity - allocated
}

// HasRoom reports whether one more session fits.
func HasRoom(capacity, allocated int) bool {
	if IsUnbounded(capacity) {
		return true
	}
	return Remaining(capacity, allocated) > 0
}

// Headroom is the score used when ranking candidates by free capacity.
// Unbounded capacity, and a bounded capacity with nothing left, both score 1.
func Headroom(capacity, allocated int) int {
	if IsUnbounded(capacity) {
		return 1
	}
	if remaining := Remaining(capacity, allocated); remaining != 0 {
		return remaining
	}
	return 1
}

// WithPending adds tentative allocations that have not yet been observed by
// the cache to an allocated count.
func WithPending(allocated, pending int) int {
	if pending < 0 {
		return allocated
	}
	return allocated + pending
}
