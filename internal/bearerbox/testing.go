package bearerbox

import "net"

// NewFromConn wraps an already-established connection as a Link. Dial
// is the usual entry point; this is useful when the connection was
// accepted or paired (e.g. net.Pipe) rather than dialed.
func NewFromConn(nc net.Conn, codec Codec) *Link {
	return newLink(nc, codec)
}
