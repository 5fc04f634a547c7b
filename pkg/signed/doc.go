// Package signed publishes cryptographically signed domain snapshots for
// distribution to enforcement points. A snapshot is serialized with a
// deterministic CBOR encoding, digested with BLAKE3 and signed by an
// external Signer collaborator, so a consumer can verify both integrity
// and origin without talking back to the store.
//
// Retrieval is conditional on the domain's modification tag: a client
// presenting the tag of the snapshot it already holds gets a cheap
// not-modified answer instead of a rebuild. A background Refresher
// subscribes to engine change notifications and regenerates snapshots
// after a debounce window, so bursts of mutations collapse into one
// signing pass.
package signed
