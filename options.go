package imgfs

// CreateOption configures CreateImage.
type CreateOption func(sb *Superblock) error

// OpenOption configures OpenImage.
type OpenOption func(sb *Superblock) error

// WithLock opts into taking an advisory exclusive flock(2) on the backing
// file for the session's lifetime (spec §5's single-controller assumption,
// enforced rather than merely documented; see store_unix.go/store_other.go).
func WithLock() CreateOption {
	return func(sb *Superblock) error {
		sb.lock = true
		return nil
	}
}

// WithLockOnOpen is the OpenImage equivalent of WithLock.
func WithLockOnOpen() OpenOption {
	return func(sb *Superblock) error {
		sb.lock = true
		return nil
	}
}
