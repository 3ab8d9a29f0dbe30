package sessionx

import (
	"github.com/marcodd23/go-tx-bridge/pkg/errorx"
)

// DaoSupport - convenient embeddable base for data access objects.
// It gives access to the Session which can then be used to execute statements.
//
// A DAO needs either a SessionFactory or an externally supplied Session. When
// both are set the factory is ignored: the external session wins, typically
// because a surrounding coordinator already scoped it to the unit of work.
type DaoSupport struct {
	session         *Session
	externalSession bool
}

// SetSessionFactory - open an own session from the factory, unless an external
// session was already supplied.
func (d *DaoSupport) SetSessionFactory(factory *SessionFactory) error {
	if d.externalSession {
		return nil
	}

	if factory == nil {
		return errorx.NewInvalidArgumentError("no session factory specified")
	}

	session, err := factory.OpenSession()
	if err != nil {
		return err
	}

	d.session = session

	return nil
}

// SetSession - use an externally managed session. The caller owns its
// lifecycle; the DAO must not commit, roll back or close it.
func (d *DaoSupport) SetSession(session *Session) {
	d.session = session
	d.externalSession = true
}

// GetSession - the session statements should be executed through.
func (d *DaoSupport) GetSession() *Session {
	return d.session
}

// CheckDaoConfig verifies the DAO was wired with a session before use.
func (d *DaoSupport) CheckDaoConfig() error {
	if d.session == nil {
		return errorx.NewInvalidArgumentError("property 'SessionFactory' or 'Session' is required")
	}

	return nil
}
