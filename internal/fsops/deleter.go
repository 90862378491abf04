package fsops

// Deleter abstracts the filesystem calls the deletion strategies make.
// Tests swap in FakeDeleter to observe or force outcomes.
type Deleter interface {
	Remove(path string) error
	Exists(path string) bool
}
