package frame

// Close tears down the topic it is sent on. The receiver releases the topic
// and its channel; no acknowledgement is sent.
type Close struct{}

func (v Close) Type() VerbType {
	return VerbClose
}

func (v Close) String() string {
	return "{Close}"
}

func (v Close) body() (interface{}, error) {
	return nil, nil
}
