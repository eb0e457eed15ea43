package monitor

// resetDefaultForTests drops the process-wide Monitor so tests can call
// Initialization again.
func resetDefaultForTests() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultMonitor = nil
}
