// Package protocol encodes and decodes the engine.io / socket.io text frames
// spoken on the upstream real-time channel.
//
// Only the handful of frames the proxy needs are understood:
//
//	0{...}            open (greeting, discarded)
//	2 / 3             ping / pong
//	40{"token":...}   connect request
//	40{"sid":...}     connect acknowledgement
//	42["name",{...}]  event
//
// Everything else decodes as KindOther. Completion fragments arrive as
//
//	42["chat-events",{"chat_id":"...","data":{"type":"chat:completion","data":{...}}}]
//
// and are exposed as Frame.Completion.
package protocol
