package paramstore

import "github.com/pingcap/errors"

var (
	// ErrBadFormat is returned by Begin when the header carries an unknown
	// format version.
	ErrBadFormat = errors.New("Unrecognized store format")

	// ErrSizeMismatch is returned by Begin when the header size disagrees
	// with the device's usable size.
	ErrSizeMismatch = errors.New("Store size does not match device")

	ErrKeyNotFound = errors.New("Key not found")

	ErrInsufficientSpace = errors.New("Insufficient free space")

	ErrEmptyKey = errors.New("Key cannot be empty")

	ErrKeyTooLong = errors.New("Key longer than 8 bytes")

	ErrValueTooLarge = errors.New("Value too large")

	// ErrBufferTooSmall is returned by Serialize unless the caller's buffer
	// is strictly larger than the output, terminator included.
	ErrBufferTooSmall = errors.New("Buffer too small")

	ErrBadSerialization = errors.New("Malformed serialized input")

	// ErrUnsupportedPlan is returned by Begin when recovery meets a plan
	// kind it does not understand.
	ErrUnsupportedPlan = errors.New("Unsupported recovery plan")
)
