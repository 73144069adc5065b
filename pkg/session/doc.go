// Package session keeps server-side variables for each user.
//
// Every browser gets a user id (the domwire_uid cookie, or the window uid a
// desktop host sends). Handlers reach that user's variables through
// live.Page.Vars:
//
//	vars := p.Vars()
//	vars.Update(func(m map[string]any) {
//	    n, _ := m["visits"].(int)
//	    m["visits"] = n + 1
//	})
//
// The MemoryStore is the only store shared between connections; it is
// partitioned per user and safe for concurrent use. Idle partitions are
// dropped after WithIdleTTL.
package session
