package fsops

// FakeDeleter implements Deleter for testing.
// It records every call and keeps an in-memory set of present paths.
type FakeDeleter struct {
	Calls   []string
	Present map[string]bool
	// RemoveErr, when set, is returned by Remove and leaves the path present.
	RemoveErr error
}

func NewFakeDeleter(present ...string) *FakeDeleter {
	f := &FakeDeleter{Present: map[string]bool{}}
	for _, p := range present {
		f.Present[p] = true
	}
	return f
}

func (f *FakeDeleter) Remove(path string) error {
	f.Calls = append(f.Calls, "rm:"+path)
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	delete(f.Present, path)
	return nil
}

func (f *FakeDeleter) Exists(path string) bool {
	f.Calls = append(f.Calls, "stat:"+path)
	return f.Present[path]
}
