// Package logging configures structured JSON logging with log/slog.
//
// Logs always go to stderr, because stdout carries the protocol stream when
// serving. With --debug or logging.file set they are also written to a
// size-rotated file (default ~/.docsearch/logs/server.log) that the
// `docsearch logs` command can tail and filter.
package logging
