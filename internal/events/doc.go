// Package events decouples producers of content from the code that delivers it.
//
// A scraper dispatches a KindSendText event with its post; the publisher
// listens for it and fans the post out to every matching channel. Events
// live only for the duration of one Dispatch call.
package events
