package collect

// ValidationError reports a caller input that matches none of the admitted
// shapes or carries an unusable target. It is the only error kind raised
// synchronously to the submitting caller; every other failure mode is
// delivered through the completion callback or logged and absorbed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "collect: invalid request: " + e.Reason
}
