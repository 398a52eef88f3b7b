package duck

import "sync"

// fileLock serializes the clients of one database file within the process. DuckDB allows
// a single writer per file and concurrent transactions on one file fail with conflicts.
type fileLock struct {
	mu      sync.Mutex
	waiters int
}

var fileLocks = struct {
	sync.Mutex
	byPath map[string]*fileLock
}{
	byPath: make(map[string]*fileLock),
}

// acquireFile blocks until the caller holds the lock for path and returns the function
// that releases it. In-memory databases are private to their client and are not locked.
func acquireFile(path string) (release func()) {
	if path == "" {
		return func() {}
	}

	fileLocks.Lock()
	lock, ok := fileLocks.byPath[path]
	if !ok {
		lock = &fileLock{}
		fileLocks.byPath[path] = lock
	}
	lock.waiters++
	fileLocks.Unlock()

	lock.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			fileLocks.Lock()
			defer fileLocks.Unlock()

			lock.waiters--
			if lock.waiters == 0 {
				delete(fileLocks.byPath, path)
			}
			lock.mu.Unlock()
		})
	}
}
