// Package unix implements the Unix domain socket connector of the persistent socket
// link, selected for unix:// socket urls. It is meant for clients and servers on the
// same machine and avoids the TCP/IP stack entirely.
//
// The default server buffer size is 64 KB.
package unix
