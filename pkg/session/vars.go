package session

import "maps"

// Vars is one user's variables. All methods are safe for concurrent use;
// the same user may have several pages open.
type Vars struct {
	p *partition
}

// Get returns the value stored under key.
func (v *Vars) Get(key string) (any, bool) {
	v.p.mu.Lock()
	defer v.p.mu.Unlock()
	val, ok := v.p.vars[key]
	return val, ok
}

// String returns the value under key if it is a string.
func (v *Vars) String(key string) string {
	val, _ := v.Get(key)
	s, _ := val.(string)
	return s
}

// Set stores value under key.
func (v *Vars) Set(key string, value any) {
	v.p.mu.Lock()
	defer v.p.mu.Unlock()
	v.p.vars[key] = value
}

// Delete removes key.
func (v *Vars) Delete(key string) {
	v.p.mu.Lock()
	defer v.p.mu.Unlock()
	delete(v.p.vars, key)
}

// Update runs fn with exclusive access to the variables, for
// read-modify-write sequences such as counters.
func (v *Vars) Update(fn func(vars map[string]any)) {
	v.p.mu.Lock()
	defer v.p.mu.Unlock()
	fn(v.p.vars)
}

// Snapshot returns a shallow copy of the variables.
func (v *Vars) Snapshot() map[string]any {
	v.p.mu.Lock()
	defer v.p.mu.Unlock()
	return maps.Clone(v.p.vars)
}
