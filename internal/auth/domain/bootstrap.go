package domain

// BootstrapAdmin describes the first administrator created on an empty
// database.
type BootstrapAdmin struct {
	Email    string
	Name     string
	Password string
}
