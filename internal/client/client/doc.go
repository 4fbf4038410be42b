// Package client contains client-side building blocks for gophdrop.
//
// # Overview
//
// The package provides:
//  1. The API contract (see the Client interface) the CLI uses to talk to the
//     gophdrop server: identity, upload/download, bin and sharing calls.
//  2. An HTTP implementation (see HTTPClient) that attaches the bearer token,
//     transparently refreshes an expired access token once, and maps
//     response statuses to the error kinds of the common package.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database with embedded goose migrations.
//
// # Error Handling
//
// Failed calls return *APIError, which matches the common kind sentinels
// with errors.Is (a 404 matches common.ErrorNotFound, and so on). Transport
// failures are wrapped in ErrUnavailable.
package client
