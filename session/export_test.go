package session

// RenewWaiters reports how many callers are waiting on a token renewal.
func (m *Manager) RenewWaiters() int {
	return int(m.renewWaiters.Load())
}
