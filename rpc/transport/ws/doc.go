// Package ws implements the websocket connector of the persistent socket link. The
// websocket is wrapped as a byte stream so the framed, multiplexed base transport runs
// over it unchanged: each frame write becomes a binary message.
//
// Key Components:
//
//   - clientConnector: Dials ws:// and wss:// urls with gorilla/websocket.
//
//   - serverConnector: Serves websocket upgrades on an HTTP listener and hands the
//     upgraded connections to the base server through a net.Listener. The headers of
//     the upgrade request are available to every call made on the connection.
package ws
