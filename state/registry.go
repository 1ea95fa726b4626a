package state

import (
	"fmt"
	"slices"
)

// Registry owns the RPL instances of this node
type Registry struct {
	max       int
	instances map[uint8]*Instance
}

func NewRegistry(max int) *Registry {
	return &Registry{
		max:       max,
		instances: make(map[uint8]*Instance),
	}
}

func (r *Registry) Get(id uint8) *Instance {
	return r.instances[id]
}

// Create allocates a new instance. At most max instances may be active at once.
func (r *Registry) Create(id uint8) (*Instance, error) {
	if _, ok := r.instances[id]; ok {
		return nil, fmt.Errorf("instance %d: %w", id, ErrInstanceConflict)
	}
	if len(r.instances) >= r.max {
		return nil, fmt.Errorf("cannot create instance %d, %d already active: %w", id, len(r.instances), ErrResourceExhausted)
	}
	inst := &Instance{
		Id:     id,
		Used:   true,
		Routes: NewRoutingTable(MaxRoutes),
	}
	r.instances[id] = inst
	return inst, nil
}

func (r *Registry) Remove(id uint8) {
	delete(r.instances, id)
}

// Active returns the active instances ordered by id
func (r *Registry) Active() []*Instance {
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b *Instance) int {
		return int(a.Id) - int(b.Id)
	})
	return out
}

func (r *Registry) Len() int {
	return len(r.instances)
}
