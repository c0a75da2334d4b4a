package pgwire

import "testing"

func TestLookupOrCreateStatementUnnamedAlwaysFresh(t *testing.T) {
	s := &Session{statements: newStatementCache()}

	first := s.lookupOrCreateStatement("SELECT 1", false)
	second := s.lookupOrCreateStatement("SELECT 1", false)

	if first == second {
		t.Fatal("expected unnamed statements to never be reused")
	}
	if first.Name != unnamedStatementName || second.Name != unnamedStatementName {
		t.Fatal("expected unnamed statements to keep the empty wire name")
	}
}

func TestLookupOrCreateStatementNamedCachesBySQL(t *testing.T) {
	s := &Session{statements: newStatementCache()}

	first := s.lookupOrCreateStatement("SELECT $1", true)
	second := s.lookupOrCreateStatement("SELECT $1", true)
	third := s.lookupOrCreateStatement("SELECT $2", true)

	if first != second {
		t.Fatal("expected identical SQL text to return the cached statement")
	}
	if first == third {
		t.Fatal("expected distinct SQL text to allocate a distinct statement")
	}
	if first.Name == unnamedStatementName {
		t.Fatal("expected a named statement to get a generated wire name")
	}
}
