// Package contentlife coordinates the lifecycle of content records and the
// binary assets they own.
//
// A ContentRecord lives in a MetadataRepository; its large binary assets
// (cover image, PDF, audio) live in a separate BlobStore with no shared
// transaction between the two. The lifecycle coordinator keeps them
// consistent with compensating actions: a blob uploaded for an operation
// that fails is deleted synchronously before the error is returned, and a
// blob retired by a successful update or delete is handed to a durable
// CleanupQueue that retries deletion until it succeeds.
package contentlife
