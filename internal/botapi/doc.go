// Package botapi is a generic client for the Telegram Bot API.
//
// There is one entry point per direction: Send for callers that want the
// decoded answer and Execute for the raw body. Any action name is accepted;
// the client knows nothing about individual methods except which fields may
// carry file content.
//
// # Encoding
//
// Params keep field order. When no field holds a raw upload the payload is
// sent as one JSON object. As soon as a field (or an item of the media field)
// holds an InputFile, []byte or io.Reader, the whole request becomes
// multipart/form-data with one part per field. Uploads inside media items
// are rewritten to attach://<kind>_<token> and travel as extra parts.
//
// # Errors
//
//	ErrEmptyPayload     no fields; nothing is sent
//	*StatusError        4xx (ErrClient), 5xx (ErrServer), other (ErrProtocol)
//	ErrInvalidResponse  2xx whose body is not a JSON value
//
// Transport errors are wrapped and returned; the bot token is removed from
// their URL first.
package botapi
