// Package services bundles the ragd services that the HTTP and MCP
// surfaces share.
//
// Build a Registry with NewRegistry and pass it to the transport layers.
// Documents wraps the content store's per-user operations and maps their
// errors onto apperr kinds; Registry.Health aggregates component checks.
package services
