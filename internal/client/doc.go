// Package client implements the consumer side of the live notification
// transport:
//
//   - A WebSocket client that decodes push frames and watches liveness
//   - A reconnection manager holding exactly one desired connection per
//     session, with capped exponential backoff and cancel-safe retries
//   - A REST client for paginated history and read-state round trips
package client
