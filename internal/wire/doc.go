// Package wire defines the JSON frames exchanged with the game server.
//
// Every frame is an Envelope:
//
//	{"type":"vote-word","id":"<uuid>","ts":1700000000000,"data":{...}}
//
// The payload is a discriminated union keyed by "type". Outbound payloads
// implement Request, inbound payloads implement Event. Two envelope types
// carry other envelopes: "batch" (a JSON array of envelopes in enqueue
// order) and any envelope whose "encoding" is "gzip", in which case "data"
// holds the base64 of the gzip-compressed JSON payload.
//
// The server echoes the request id on its direct replies (room-created,
// room-joined, error) so callers can correlate responses.
package wire
