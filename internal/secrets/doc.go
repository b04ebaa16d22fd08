// Package secrets redacts credentials from extracted document text before it
// is fingerprinted, embedded or stored.
//
// Detection uses the gitleaks default rule set. Each detected secret is
// replaced with a [REDACTED:rule-id:preview] marker so chunks keep their
// shape for embedding without carrying the value. An optional allowlist TOML
// file (gitleaks [allowlist] format) suppresses known false positives.
package secrets
