// Package registration implements the registration-service collaborator
// (spec §6): a service submits its identity and receives a collection name.
// cmd/activityd registers once at startup with type "recorder" and does not
// use the returned name; the hot-tier and warm/cold stores take no
// collection name and write where their own configuration points.
package registration

import (
	"fmt"
	"sync"
)

// Registration is what a service submits on startup.
type Registration struct {
	ServiceName string
	ServiceUUID string
	Version     string
	Description string
	Type        string
}

// Assignment is what the registry hands back.
type Assignment struct {
	CollectionName string
}

// Registry assigns collection names to registering services, keyed by
// service_uuid so re-registration is idempotent. Adapted from the
// teacher's storage/factory BackendFactory registry: a name->implementation
// map guarded by a mutex, with a lookup-or-create path instead of a fixed
// compile-time registration list, because collection assignment happens at
// runtime per service instance rather than at package init.
type Registry struct {
	mu     sync.Mutex
	byUUID map[string]Assignment
	seq    int
	prefix string
}

// New creates an empty Registry. prefix namespaces every assigned
// collection name (e.g. "actmem" -> "actmem_activities_1").
func New(prefix string) *Registry {
	if prefix == "" {
		prefix = "actmem"
	}
	return &Registry{
		byUUID: make(map[string]Assignment),
		prefix: prefix,
	}
}

// Register assigns (or re-returns) a collection name for the given
// registration. Re-registering the same ServiceUUID always returns the
// same Assignment.
func (r *Registry) Register(reg Registration) (Assignment, error) {
	if reg.ServiceUUID == "" {
		return Assignment{}, fmt.Errorf("registration: service_uuid is required")
	}
	if reg.ServiceName == "" {
		return Assignment{}, fmt.Errorf("registration: service_name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.byUUID[reg.ServiceUUID]; ok {
		return a, nil
	}

	r.seq++
	a := Assignment{CollectionName: fmt.Sprintf("%s_%s_%d", r.prefix, reg.Type, r.seq)}
	r.byUUID[reg.ServiceUUID] = a
	return a, nil
}

// Lookup returns the assignment for a previously registered uuid, if any.
func (r *Registry) Lookup(serviceUUID string) (Assignment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byUUID[serviceUUID]
	return a, ok
}
