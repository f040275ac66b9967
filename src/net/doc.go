// Package net implements the peer-to-peer transport: a symmetric
// request/response protocol over pluggable stream layers (TCP, mutually
// authenticated TLS, or in-memory for tests). Each request is framed by a
// tag byte followed by a signed msgpack envelope; responses are an error
// string followed by the msgpack response object.
package net
