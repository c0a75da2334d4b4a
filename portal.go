package pgwire

// Portal is a bound execution of a PreparedStatement with concrete
// parameters: transient, created by Bind and consumed by Execute. It is
// implicitly destroyed at transaction end, or on Sync after an
// Execute with maxRows=0 ran to completion.
type Portal struct {
	Name      string
	Statement *PreparedStatement
	suspended bool
}

func (s *Session) newPortal(stmt *PreparedStatement) *Portal {
	return &Portal{Name: s.nextName("portal"), Statement: stmt}
}
