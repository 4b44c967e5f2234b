// Package value implements Value, the tagged data cell every binderkit call
// passes around, and CompositeMap, the sorted pair array behind map Values.
//
// # Kinds
//
// A Value carries a TypeCode and a payload. Payloads of up to
// InlineThreshold bytes live inside the Value; longer ones are immutable
// out-of-line buffers shared between copies. Maps and object references
// are held by pointer.
//
//	args := value.NewMap(
//	    value.Pair{Key: value.String("a"), Value: value.Int32(1)},
//	    value.Pair{Key: value.String("b"), Value: value.String("x")},
//	)
//	b := args.ValueFor(value.String("b")) // "x"
//
// # Copy on write
//
// Copying a Value shares its map. Every change goes through Edit, which
// clones the map first:
//
//	alias := args
//	_ = alias.Edit(func(e *value.Editor) error {
//	    return e.Set(value.String("a"), value.Int32(2))
//	})
//	// args still holds a=1
//
// Join, JoinItem, Overlay, RemoveItem and RenameItem are single-call
// wrappers around Edit.
//
// # Order
//
// Compare is a total order: undefined first, then by type code, payload
// length and payload bytes, with numbers compared numerically. Maps use
// Compare for their keys unless created with OrderLexical, which compares
// strings case-folded.
//
// # Archive
//
// AppendArchive and Unarchive convert Values to and from the record format
// carried inside parcels. Object references are written as indexes into a
// table supplied by the caller.
package value
