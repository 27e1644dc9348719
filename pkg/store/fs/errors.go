package fs

import "errors"

// Protocol adapters check these with errors.Is and map them to response
// statuses. Implementations wrap them with the offending URI:
//
//	return fmt.Errorf("open %s: %w", uri, ErrNotFound)
var (
	// ErrNotFound indicates the target does not exist.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrNotFound = errors.New("target not found")

	// ErrPermission indicates the process may not open the target or create
	// one of its parent directories.
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrPermission = errors.New("permission denied")

	// ErrIsDirectory indicates the target names a directory.
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrIsDirectory = errors.New("target is a directory")
)
