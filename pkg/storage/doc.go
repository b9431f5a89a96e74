// Package storage provides utilities shared across answer store
// implementations: sentinel errors, tenant context helpers and list
// pagination defaults.
//
// Store adapters (memory, postgres) implement the transport.AnswerStore
// interface defined in pkg/transport/handler.go. This package contains
// only shared types and helpers, not the interface itself.
package storage
