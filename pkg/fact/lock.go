package fact

import "sync"

// tableLocks maps table names to their locks so that every merge in the process
// against the same table runs one at a time.
var tableLocks = struct {
	sync.Mutex
	locks map[string]*tableLock
}{
	locks: make(map[string]*tableLock),
}

type tableLock struct {
	sync.Mutex
	holders int
}

func LockTable(name string) {
	tableLocks.Lock()
	lock, ok := tableLocks.locks[name]
	if !ok {
		lock = &tableLock{}
		tableLocks.locks[name] = lock
	}
	lock.holders++
	tableLocks.Unlock()

	lock.Lock()
}

func UnlockTable(name string) {
	tableLocks.Lock()
	lock, ok := tableLocks.locks[name]
	if !ok {
		tableLocks.Unlock()
		return
	}
	lock.holders--
	if lock.holders == 0 {
		delete(tableLocks.locks, name)
	}
	tableLocks.Unlock()

	lock.Unlock()
}
