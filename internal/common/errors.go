// Package common defines shared constants and sentinel errors used across
// the inventory keeper components. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrDecode   = errors.New("malformed document")
	ErrClosed   = errors.New("store closed")

	// Validation errors raised before a record is written.
	ErrBlankName        = errors.New("name must not be blank")
	ErrNegativeQuantity = errors.New("quantity must not be negative")

	// Ingestion errors. Only access and primary transport errors ever reach
	// the caller of an ingest; derivation errors are absorbed.
	ErrAccessDenied     = errors.New("access to asset denied")
	ErrReadAsset        = errors.New("cannot read asset")
	ErrUpload           = errors.New("upload failed")
	ErrResolveURL       = errors.New("cannot resolve retrieval url")
	ErrIngestInProgress = errors.New("ingest already in progress for item")
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrNoPreview        = errors.New("no preview available")

	// ErrSave marks a persistence failure after a successful ingest.
	ErrSave = errors.New("save failed")

	// Configuration errors.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrNoPublicURL rejects an S3 backend whose retrieval links would be
	// presigned and therefore expire once persisted.
	ErrNoPublicURL = errors.New("s3 backend requires a public url")
)
