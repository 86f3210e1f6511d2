// Package bridge manages the connection to the content-creation-tool
// subprocess that converts authoring-tool scene files into raw
// cookable buffers.
//
// The tool speaks a line protocol over its stdin/stdout pipes: one
// request line, then either "OK", "ERR <message>", or "BUF <n>"
// followed by n raw bytes and a closing status line. The connection is
// shared and strictly serialized: callers acquire a Session, which
// holds the connection's single token for the duration of the
// exchange (including multi-line scripted sessions) and releases it on
// Close along every exit path.
package bridge
