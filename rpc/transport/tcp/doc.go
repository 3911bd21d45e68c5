// Package tcp implements the TCP connector of the persistent socket link, selected
// for tcp:// socket urls. It builds on the base package and inherits its request
// correlation, reconnection and worker handling.
//
// The client applies the TCPConf and SocketConf options of the client configuration
// (TCP_NODELAY, keep-alive, linger, socket buffers) to each connection. The default
// server buffer size is 512 KB.
package tcp
