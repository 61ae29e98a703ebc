package common

// File permission constants used across the application.
const (
	// FilePermissionSecure is for sensitive files (config, credentials, keys).
	FilePermissionSecure = 0600

	// FilePermissionNormal is for non-sensitive files (reports, exports).
	FilePermissionNormal = 0644

	// DirPermissionSecure is for directories containing sensitive files.
	DirPermissionSecure = 0700

	// DirPermissionNormal is for normal directories.
	DirPermissionNormal = 0755
)
