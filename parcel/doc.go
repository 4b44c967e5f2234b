// Package parcel implements the transaction buffer that carries one request
// or one reply.
//
// A Parcel holds a byte buffer with a separate read cursor and a table of
// flattened object references. Values are written with WriteValue using the
// archive format of package value; object references inside them become
// indexes into the table.
//
// Each entry in the table carries one transit reference. Flattening takes
// it, unflattening on the receiving side consumes it, and Free releases any
// that were never consumed, so a parcel that is dropped unsent or a reply
// whose objects were never read does not leak remote objects.
//
//	req := parcel.New(proc)
//	_ = req.WriteValue(args)
//	defer req.Free()
package parcel
