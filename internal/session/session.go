// Package session is the boundary to the authentication service. The core
// only ever asks one question: who is this, or is it nobody.
package session

// Session supplies a stable user identity, or reports anonymous mode.
type Session interface {
	// CurrentUserID returns the authenticated user id and true, or false
	// when the session is anonymous.
	CurrentUserID() (int64, bool)
}

// Static is a fixed-identity session, used by tests and local development.
type Static struct {
	UserID   int64
	LoggedIn bool
}

func (s *Static) CurrentUserID() (int64, bool) {
	return s.UserID, s.LoggedIn
}

func (s *Static) Login(userID int64) {
	s.UserID = userID
	s.LoggedIn = true
}

func (s *Static) Logout() {
	s.UserID = 0
	s.LoggedIn = false
}
