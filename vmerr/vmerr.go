// Package vmerr defines the error codes returned across the virtual
// memory subsystem. Every fallible operation in this module returns
// an Err_t rather than the idiomatic Go error, matching the
// POSIX-errno convention the rest of the subsystem is built around:
// zero means success, a negative value names the failure.
package vmerr

// Err_t is a POSIX-style error code. Success is always 0; a failure
// is the negation of one of the sentinels below (e.g. -EIO).
type Err_t int

// Sentinel error codes. Values are arbitrary but stable within this
// module; they are never compared against real kernel errno values.
const (
	EFAULT       Err_t = 14 /// bad virtual address
	ENOMEM       Err_t = 12 /// no physical frames or swap slots available
	EINVAL       Err_t = 22 /// invalid argument (bad alignment, bad fd, ...)
	ENAMETOOLONG Err_t = 36 /// user string exceeded the caller's limit
	EIO          Err_t = 5  /// underlying device or file I/O failed
	EBUSY        Err_t = 16 /// slot or frame already in the requested state
	ENOENT       Err_t = 2  /// no such mapping/slot/entry
)

// Ok reports whether err is the zero value, i.e. success.
func (err Err_t) Ok() bool {
	return err == 0
}

// String renders the error for logging; it is not meant to be parsed.
func (err Err_t) String() string {
	switch -err {
	case EFAULT:
		return "EFAULT"
	case ENOMEM:
		return "ENOMEM"
	case EINVAL:
		return "EINVAL"
	case ENAMETOOLONG:
		return "ENAMETOOLONG"
	case EIO:
		return "EIO"
	case EBUSY:
		return "EBUSY"
	case ENOENT:
		return "ENOENT"
	case 0:
		return "OK"
	default:
		return "EUNKNOWN"
	}
}
