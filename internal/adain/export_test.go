package adain

// Recover runs fn and returns the panic it raised, converted like the
// trainer does.
func Recover(fn func()) (err error) {
	defer guard(&err)
	fn()
	return nil
}
