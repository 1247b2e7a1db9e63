// Package discord binds chanreset to the Discord API.
//
// It provides the three platform collaborators the reset scheduler needs:
//
//   - Resources: message history pages, channel clone, reposition and
//     delete over the REST API
//   - GraveyardSink: posts archived transcripts as a file attachment
//   - Gateway: a websocket session that turns CHANNEL_CREATE,
//     CHANNEL_UPDATE and CHANNEL_DELETE dispatches into lifecycle events
//
// REST calls go through a circuit breaker and honor 429 retry_after hints.
// No external Discord library is used; the module speaks raw net/http,
// encoding/json and websocket.
package discord
