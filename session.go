package caselist

// Session carries the identity of the signed-in user. It is threaded through
// construction explicitly instead of being read from ambient storage, so the
// core is testable without a simulated browser environment.
type Session struct {
	UserID string
	Role   string
	Token  string
}
