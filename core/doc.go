// Package core holds the domain model shared by the mobile access
// credential orchestration packages: pass lifecycle states and the
// state machine registry, enterprise user and issuance token types,
// lifecycle events, configuration, and the error envelope helpers.
package core
