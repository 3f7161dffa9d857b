package middleware

import "github.com/aretw0/gamestate/pkg/ports"

// Middleware allows wrapping a CriticalDataStore to add behavior.
type Middleware func(ports.CriticalDataStore) ports.CriticalDataStore

// Chain applies middlewares so the first one listed is the outermost.
func Chain(store ports.CriticalDataStore, mws ...Middleware) ports.CriticalDataStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
