package provider

import "fmt"

// New создаёт сессию нужного вида.
func New(kind Kind, deps Deps) (Session, error) {
	switch kind {
	case CloudAPI:
		return NewCloudAPISession(deps), nil
	case LocalProxy:
		return NewLocalProxySession(deps), nil
	case LocalInference:
		return NewLocalInferenceSession(deps), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}
