// Package router fans the decoded event stream out to subscribers.
//
// The router is the single writer to the feed.Log: it decodes raw frames
// from the transport, appends the valid ones, and delivers each message to
// every subscription registered for its type. A malformed frame is counted
// and dropped; it never reaches the log or a subscriber and never affects
// the connection.
//
// Subscriptions expose both views the dashboard needs: Snapshot() for
// "what matches right now" and Updates() for future matches. Type-filtered
// snapshots are memoized so unrelated traffic does not produce new slices
// for consumers that ignore it.
package router
