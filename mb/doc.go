// Package mb implements the message-board subsystem.
//
// Each declared message type owns one Board: a column-major committed
// store plus per-worker Writer staging areas. Posted messages stay
// private to their writer until a sync task merges them into the
// committed store; a clear task empties the committed store after its
// readers are done. The compiler places sync and clear tasks so that
// neither ever runs concurrently with a reader or poster.
//
// Tasks reach boards only through capability objects: the compiler gives
// each task a Proxy naming the messages it may read or post, and every
// worker executing the task mints a private Client from it.
package mb
