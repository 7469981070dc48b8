// Package testutil provides shared test helpers and fixtures for tiedsiren.
//
// Tests run against real SQLite in a temp dir rather than mocks. Cleanup is
// registered on t.Cleanup.
//
//	database := testutil.NewTestDB(t)
//	list := testutil.MakeBlocklist(t, database, testutil.WithWebsites("reddit.com"))
//	testutil.MakeSession(t, database, list, testutil.Strict())
package testutil
