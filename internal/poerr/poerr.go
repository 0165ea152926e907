// Package poerr defines the sentinel error values used across the core so
// callers can distinguish error kinds with errors.Is, without a bespoke
// error-code enum. This mirrors how the rest of this pack's repositories
// (e.g. athena-dhcpd) model errors: plain wrapped stdlib errors, not a
// custom taxonomy type.
package poerr

import "errors"

var (
	// ErrNoBootFile means the configuration resolver could not determine
	// a boot_file for a request (§4.2).
	ErrNoBootFile = errors.New("no boot file resolved for request")

	// ErrNoTftp means boot_server_ipv4 could not be resolved and no local
	// TFTP server is configured either (§4.2).
	ErrNoTftp = errors.New("no tftp server available for request")

	// ErrAtCapacity means the session table is full and the oldest entry
	// was not old enough to evict (§4.3).
	ErrAtCapacity = errors.New("session table at capacity")

	// ErrBindFailed means a listener could not bind its port; fatal to
	// the process (§4.6, §7).
	ErrBindFailed = errors.New("bind failed")

	// ErrAlreadyRunning means another instance holds the single-instance
	// lock (§6).
	ErrAlreadyRunning = errors.New("another instance is already running")

	// ErrPathEscape means a TFTP request resolved outside the configured
	// root directory (§4.5); surfaces as TFTP ERROR code 2.
	ErrPathEscape = errors.New("path escapes tftp root")

	// ErrFileNotFound means the requested TFTP file does not exist or is
	// not a regular file; surfaces as TFTP ERROR code 1.
	ErrFileNotFound = errors.New("file not found")
)
