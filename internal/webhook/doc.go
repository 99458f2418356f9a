// Package webhook turns inbound Telegram updates into registry changes and replies.
//
// # Updates
//
// An update is classified by the first key present: message, my_chat_member,
// channel_post. Anything else is acknowledged and ignored. Fields are read
// with gjson, so a missing key never panics; it just fails to match.
//
// # Commands
//
// Only messages whose sender is the configured owner are interpreted:
//
//	/start, /ping                               greeting
//	/list_channels                              one line per channel
//	/edit_channel_data <service> <id> [env]     tag a channel
//
// # Membership
//
// When the bot itself is promoted to administrator (or restricted) in a chat
// the chat is registered; when it leaves or is kicked the chat is removed.
// The owner is notified in both cases. Changes to one chat id are serialized.
//
// # HTTP
//
// Handler answers 400 for empty or non-object bodies and 200 for everything
// else, including ignored updates and redelivered update ids.
package webhook
