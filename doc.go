// doc.go - top level documentation
//
// (c) Sudhi Herle 2024
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

// Package bhstore implements an external-memory bucketed signature store:
// the construction-time backbone for minimal perfect hash functions and
// compressed static functions over very large key sets.
//
// Keys are ingested in a single streaming pass with bounded memory. Each
// key is reduced to a 128-bit signature via a seeded hash and appended,
// together with an optional 64-bit value, to one of 2^L on-disk segment
// files selected by the top L bits of the signature. Once ingestion is
// done, the store replays the segments as a sequence of buckets: runs of
// signature-sorted records sharing the same bucket index under a monotone
// fixed-point map from signature to [0, m). Downstream consumers solve a
// small local system per bucket (hypergraph peeling, GF(2) systems, ...)
// and never see more than one segment's worth of records in memory.
//
// Signature collisions are detected lazily while buckets are emitted;
// CheckAndRetry() reseeds the store and re-ingests the keys until a
// collision-free seed is found.
//
// The store keeps all 2^L segment files open for its lifetime; callers
// ingesting with a small file-descriptor budget should lower
// Config.Log2Segments.
package bhstore
