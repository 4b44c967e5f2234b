// Package stream carries binder transactions over a byte stream between
// two processes on one host, typically a unix socket.
//
// Every message is a frame: a fixed 32-byte big-endian header followed by
// the payload.
//
//	offset  size  field
//	0       4     magic 'BNDR'
//	4       2     version
//	6       2     header length
//	8       4     transaction id
//	12      4     target handle (0 for reference counting traffic)
//	16      4     code
//	20      4     flags (high bit marks a reply)
//	24      4     status (replies only)
//	28      4     payload length
//
// The payload is a 4-byte data length, the parcel bytes and the parcel's
// object table. Parcel bytes keep host byte order: both ends must run on
// the same machine.
//
// Serve starts a connection on an accepted stream; Dial opens one:
//
//	c, err := stream.Dial(ctx, proc, "unix", "/run/app.sock")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
package stream
