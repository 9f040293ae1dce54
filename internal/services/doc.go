// Package services defines the shared error taxonomy and context helpers used
// by the session registry, download monitor and their callers.
//
// Key responsibilities:
//   - Sentinel markers (resource exhausted, not found, invalid state, network,
//     unclassified) plus the Wrap helper that keeps the marker visible to
//     errors.Is while adding component context.
//   - NetworkError, which carries the classifier category of a transient
//     transfer failure.
//   - HTTPStatus, the single mapping from markers to API status codes.
//   - Context helpers that stamp session, job and request identifiers for
//     logging.
package services
