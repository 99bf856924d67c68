// Package domain provides shared domain-level sentinel errors.
//
// The taxonomy is deliberately small: entry points map these to HTTP
// statuses, tool execution maps them into per-call results, and the
// ingestion worker maps them to queue redelivery decisions.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized indicates a missing, invalid, or expired credential.
var ErrUnauthorized = errors.New("unauthorized")

// ErrValidation indicates a malformed request body or tool arguments.
// Wrapping errors carry field-level detail.
var ErrValidation = errors.New("validation failed")

// ErrToolNotFound indicates a tool call named an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolExecution indicates a registered tool's handler failed.
var ErrToolExecution = errors.New("tool execution failed")

// ErrRetrieval indicates an embedding or vector-store failure.
var ErrRetrieval = errors.New("retrieval failed")

// ErrCompletion indicates an LLM completion failure.
var ErrCompletion = errors.New("completion failed")

// ErrExtraction indicates an unsupported or corrupt document during ingestion.
var ErrExtraction = errors.New("extraction failed")

// ErrQueue indicates a queue publish or consume failure.
var ErrQueue = errors.New("queue failed")
