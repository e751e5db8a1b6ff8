// Package storage provides the SQLite persistence layer used by the
// dispatch services.
//
// It owns:
//   - Events with their reminder-fired bitmask and status
//   - Users and per-event registrations
//   - The durable broadcast queue with its sent markers
package storage
