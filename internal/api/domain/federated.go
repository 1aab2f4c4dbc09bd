package domain

// FlowMethod says what a federated callback should do with the identity.
type FlowMethod string

const (
	FlowLogin    FlowMethod = "login"
	FlowRegister FlowMethod = "register"
)

// Valid reports whether m is a known flow.
func (m FlowMethod) Valid() bool {
	return m == FlowLogin || m == FlowRegister
}

// ExternalIdentity is the verified subject returned by an identity provider.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}
