// Package tgui has small helpers for Telegram inline keyboards, callback
// data and HTML-mode text.
package tgui
