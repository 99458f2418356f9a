// Package publisher fans one post out to every channel registered for the
// producing service.
//
// Destinations are resolved once per event. Each channel gets exactly one
// sendMessage or sendPhoto call; sends run in a bounded errgroup paced by a
// token bucket, and failures are collected in the Report instead of
// cancelling the batch.
package publisher
