// Package feed defines the event stream data model.
//
// The feed package owns:
//   - The Message envelope and the known event type catalogue
//   - The decode boundary: raw frames are validated exactly once here, a
//     malformed frame yields a DecodeError scoped to that frame only
//   - Typed payload structs for the known catalogue
//   - The Log: bounded, ordered retention of the most recent messages with
//     FIFO eviction
package feed
