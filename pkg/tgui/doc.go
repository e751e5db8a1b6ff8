// Package tgui holds small helpers for building Telegram message payloads:
// HTML escaping for ParseMode="HTML" and rune-safe truncation against the
// Telegram size limits.
package tgui
