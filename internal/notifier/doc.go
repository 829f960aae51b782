// Package notifier delivers chat messages.
//
// Send is the synchronous path used for subscriber deliveries: it is rate
// limited, renders asset links as bullet lines and suppresses an identical
// message to the same user inside the dedup window, so re-checking a
// release never duplicates it.
//
// Notify is the asynchronous path for operator messages (ops alerts). It
// queues the message and a small worker pool sends it with retries.
//
// A short in-memory history of sent messages backs /status.
package notifier
