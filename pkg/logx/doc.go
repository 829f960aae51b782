// Package logx is airwatch's structured logging layer.
//
// Logger wraps zerolog with component fields and a Service that can swap
// sinks at runtime: readable console lines, JSON lines in a file, and an
// optional rate-limited Telegram ops group.
package logx
