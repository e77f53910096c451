// Package model defines shared data types used across the notification service.
//
// Conventions:
//   - IDs: uuid.UUID for notification records, string for user ids
//   - Timestamps: time.Time, serialized as RFC 3339 in JSON
//   - Optional JSON fields: pointers, serialized as null when absent
package model
