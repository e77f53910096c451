// Package registry implements the live Connection Registry.
//
// The registry:
//   - Tracks every open WebSocket connection per user (multi-device)
//   - Sweeps dead peers with a ping/pong heartbeat every interval
//   - Fans a pushed notification out to all of a user's connections
//
// The registry is intentionally ephemeral and in-process: it is not a
// delivery queue. Durability comes from the persisted record plus the
// paginated history endpoint.
package registry
