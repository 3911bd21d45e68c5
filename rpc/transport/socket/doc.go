// Package socket maps socket urls to the connectors of the persistent socket link:
// ws:// and wss:// use websockets, tcp:// a plain TCP stream and unix:// a Unix domain
// socket. All of them share the framed, multiplexed base transport.
package socket
