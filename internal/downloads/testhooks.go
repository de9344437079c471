package downloads

// stepStartHook runs at the start of Download, before the entry is marked
// downloading.
var stepStartHook = func(*Downloader) {}

// SetStepStartHookForTests overrides the Download start hook during tests.
func SetStepStartHookForTests(fn func(id int64)) func() {
	previous := stepStartHook
	stepStartHook = func(d *Downloader) { fn(d.ID()) }
	return func() {
		stepStartHook = previous
	}
}
