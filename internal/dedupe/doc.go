// Package dedupe drops repeated deliveries of the same inbound update.
//
// Telegram retries a webhook delivery until it gets a 2xx answer, so a slow
// response can produce the same update_id twice. The webhook handler calls
// CheckAndMark on every update id and ignores the ones already seen.
package dedupe
