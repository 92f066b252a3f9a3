// Package registry provides a generic thread-safe registry for values indexed by key.
//
// Registry is tuned for read-heavy workloads using sync.RWMutex. taskflow uses
// it as the task registry: task name to step function.
//
// # Basic Usage
//
//	r := registry.New[string, int]()
//	r.Register("one", 1)
//	r.Register("two", 2)
//
//	value, ok := r.Get("one")
//	if ok {
//	    fmt.Println(value) // Output: 1
//	}
//
// # Merging
//
// MergeFrom copies another registry into this one, last writer wins.
// This is how sub-flow steps are spliced into a parent flow:
//
//	parent.MergeFrom(child)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Range works on a snapshot, so
// the callback may modify the registry without deadlocking.
package registry
