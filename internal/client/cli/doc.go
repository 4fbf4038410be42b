// Package cli implements the gophdrop command-line client.
//
// Every invocation runs one command:
//
//	gophdrop upload report.pdf -p
//	gophdrop download 3xY8kQ2m -o ~/Downloads -p
//	gophdrop share 3xY8kQ2m bob
//
// Commands work anonymously unless a session exists; login stores the
// tokens in the local SQLite database and later commands reuse them,
// refreshing the access token when it expires. Passwords are read from the
// terminal without echo.
package cli
