// Package tracker implements the process-local tracked-resources registry:
// every cluster resource a controller creates with lifetime shorter than
// the process run is registered before the creating call is made, and
// removed only after its deletion has been observed.
package tracker

import (
	"sync"
)

// Kind distinguishes the resource classes the drain order cares about.
type Kind int

const (
	Pod Kind = iota
	PVC
	Secret
)

// drainOrder is the order resources are deleted in during a drain: pod,
// then PVC, then secret.
var drainOrder = []Kind{Pod, PVC, Secret}

func (k Kind) String() string {
	switch k {
	case Pod:
		return "pod"
	case PVC:
		return "pvc"
	case Secret:
		return "secret"
	default:
		return "unknown"
	}
}

// key identifies a tracked resource.
type key struct {
	kind      Kind
	namespace string
	name      string
}

// entry pairs a cleanup callback with the resource it belongs to.
type entry struct {
	key     key
	cleanup func() error
}

// Registry is the mutex-guarded map from (kind, namespace, name) to cleanup
// callback. The zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	entries map[key]entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[key]entry)}
}

// Add registers a resource before the call that creates it is made. cleanup
// deletes the resource from the cluster; it must be idempotent (a 404
// response from the cluster counts as success).
func (r *Registry) Add(kind Kind, namespace, name string, cleanup func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[key]entry)
	}
	k := key{kind: kind, namespace: namespace, name: name}
	r.entries[k] = entry{key: k, cleanup: cleanup}
}

// Remove deregisters a resource. Call this only after its deletion has been
// observed (404) or explicitly skipped.
func (r *Registry) Remove(kind Kind, namespace, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key{kind: kind, namespace: namespace, name: name})
}

// Len reports the number of resources currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// DrainResult reports the outcome of cleaning up one tracked resource.
type DrainResult struct {
	Kind      Kind
	Namespace string
	Name      string
	Err       error
}

// Drain deletes every tracked resource in pod -> PVC -> secret order and
// removes it from the registry regardless of cleanup outcome. The snapshot
// of entries is copied under the mutex; cleanup calls run outside it so a
// slow delete cannot block concurrent Add/Remove calls. Individual cleanup
// errors are collected and returned; they never stop the drain.
func (r *Registry) Drain() []DrainResult {
	r.mu.Lock()
	snapshot := make(map[Kind][]entry)
	for _, e := range r.entries {
		snapshot[e.key.kind] = append(snapshot[e.key.kind], e)
	}
	r.mu.Unlock()

	var results []DrainResult
	for _, kind := range drainOrder {
		for _, e := range snapshot[kind] {
			err := e.cleanup()
			results = append(results, DrainResult{
				Kind:      e.key.kind,
				Namespace: e.key.namespace,
				Name:      e.key.name,
				Err:       err,
			})
			r.Remove(e.key.kind, e.key.namespace, e.key.name)
		}
	}
	return results
}
