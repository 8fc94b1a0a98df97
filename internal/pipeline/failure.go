package pipeline

// Failure is the single fatal outcome of an ingest. Error returns a message
// suitable for showing to a user; Unwrap exposes the cause for errors.Is.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(msg string, err error) *Failure {
	return &Failure{Message: msg, Err: err}
}
