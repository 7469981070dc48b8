package db_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/siren"
	"github.com/tiedsiren/tiedsiren/internal/testutil"
)

func TestOpen_MissingWithoutCreate(t *testing.T) {
	_, err := db.Open(filepath.Join(t.TempDir(), "missing.db"))
	if !errors.Is(err, db.ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}
	if _, err := db.Open(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	first, err := db.OpenAndMigrate(path)
	testutil.RequireNoError(t, err, "open")
	v, err := first.SchemaVersion()
	testutil.RequireNoError(t, err, "version")
	testutil.RequireEqual(t, 2, v, "schema version")
	testutil.RequireNoError(t, first.Close(), "close")

	second, err := db.OpenAndMigrate(path)
	testutil.RequireNoError(t, err, "reopen")
	defer second.Close()
	v, err = second.SchemaVersion()
	testutil.RequireNoError(t, err, "version")
	testutil.RequireEqual(t, 2, v, "schema version after reopen")
	testutil.RequireEqual(t, path, second.Path(), "path")
}

func TestOpen_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	rw := testutil.NewTestDBAtPath(t, path)
	testutil.MakeBlocklist(t, rw, testutil.WithName("Social"))

	ro, err := db.OpenWithOptions(path, db.OpenOptions{ReadOnly: true})
	testutil.RequireNoError(t, err, "open read-only")
	defer ro.Close()

	lists, err := ro.ListBlocklists()
	testutil.RequireNoError(t, err, "list")
	testutil.RequireLen(t, lists, 1, "blocklists")
}

func TestBlocklist_CreateAndGet(t *testing.T) {
	database := testutil.NewTestDB(t)

	b := &db.Blocklist{
		Name: "  Social  ",
		Sirens: siren.Sirens{
			Android:  []siren.AndroidApp{{PackageName: "com.facebook.katana", AppName: "Facebook"}, {PackageName: "com.facebook.katana"}},
			Websites: []string{"reddit.com"},
			Keywords: []string{"news"},
			Windows:  []string{"steam.exe"},
		},
	}
	testutil.RequireNoError(t, database.CreateBlocklist(b), "create")
	testutil.RequireEqual(t, "Social", b.Name, "trimmed name")

	got, err := database.GetBlocklist(b.ID)
	testutil.RequireNoError(t, err, "get")

	want := siren.Empty()
	want.Android = []siren.AndroidApp{{PackageName: "com.facebook.katana", AppName: "Facebook"}}
	want.Windows = []string{"steam.exe"}
	want.Websites = []string{"reddit.com"}
	want.Keywords = []string{"news"}
	if diff := cmp.Diff(want, got.Sirens); diff != "" {
		t.Fatalf("sirens (-want +got):\n%s", diff)
	}

	byName, err := database.GetBlocklistByName("Social")
	testutil.RequireNoError(t, err, "get by name")
	testutil.RequireEqual(t, b.ID, byName.ID, "id by name")

	err = database.CreateBlocklist(&db.Blocklist{Name: "Social"})
	testutil.RequireErrorIs(t, err, db.ErrBlocklistExists, "duplicate name")

	if err := database.CreateBlocklist(&db.Blocklist{Name: " "}); err == nil {
		t.Fatalf("expected error for blank name")
	}

	_, err = database.GetBlocklist("missing")
	testutil.RequireErrorIs(t, err, db.ErrBlocklistNotFound, "missing blocklist")
}

func TestBlocklist_AddRemoveSirens(t *testing.T) {
	database := testutil.NewTestDB(t)
	b := testutil.MakeBlocklist(t, database)

	testutil.RequireNoError(t, database.AddSiren(b.ID, db.SirenEntry{Category: siren.CategoryWebsites, Identifier: "x.com"}), "add x.com")
	testutil.RequireNoError(t, database.AddSiren(b.ID, db.SirenEntry{Category: siren.CategoryAndroid, Identifier: "com.a", Label: "A"}), "add com.a")
	testutil.RequireNoError(t, database.AddSiren(b.ID, db.SirenEntry{Category: siren.CategoryWebsites, Identifier: "y.com"}), "add y.com")

	err := database.AddSiren(b.ID, db.SirenEntry{Category: siren.CategoryWebsites, Identifier: "x.com"})
	testutil.RequireErrorIs(t, err, db.ErrSirenExists, "duplicate siren")

	if err := database.AddSiren(b.ID, db.SirenEntry{Category: "fax", Identifier: "x"}); err == nil {
		t.Fatalf("expected error for unknown category")
	}
	err = database.AddSiren("missing", db.SirenEntry{Category: siren.CategoryWebsites, Identifier: "x.com"})
	testutil.RequireErrorIs(t, err, db.ErrBlocklistNotFound, "add to missing blocklist")

	entries, err := database.BlocklistEntries(b.ID)
	testutil.RequireNoError(t, err, "entries")
	var order []string
	for _, e := range entries {
		order = append(order, e.Identifier)
	}
	if diff := cmp.Diff([]string{"x.com", "com.a", "y.com"}, order); diff != "" {
		t.Fatalf("entry order (-want +got):\n%s", diff)
	}

	testutil.RequireNoError(t, database.RemoveSiren(b.ID, siren.CategoryWebsites, "x.com"), "remove")
	err = database.RemoveSiren(b.ID, siren.CategoryWebsites, "x.com")
	testutil.RequireErrorIs(t, err, db.ErrSirenNotFound, "remove twice")

	got, err := database.GetBlocklist(b.ID)
	testutil.RequireNoError(t, err, "get")
	if diff := cmp.Diff([]string{"y.com"}, got.Sirens.Websites); diff != "" {
		t.Fatalf("websites (-want +got):\n%s", diff)
	}
	testutil.RequireEqual(t, "A", got.Sirens.Android[0].AppName, "android label")
}

func TestBlocklist_RenameDeleteList(t *testing.T) {
	database := testutil.NewTestDB(t)
	a := testutil.MakeBlocklist(t, database, testutil.WithName("b-list"), testutil.WithWebsites("x.com"))
	testutil.MakeBlocklist(t, database, testutil.WithName("a-list"))

	lists, err := database.ListBlocklists()
	testutil.RequireNoError(t, err, "list")
	testutil.RequireLen(t, lists, 2, "blocklists")
	testutil.RequireEqual(t, "a-list", lists[0].Name, "ordered by name")
	testutil.RequireEqual(t, 1, lists[1].Sirens.Len(), "sirens loaded for listed blocklists")

	testutil.RequireErrorIs(t, database.RenameBlocklist(a.ID, "a-list"), db.ErrBlocklistExists, "rename to taken name")
	testutil.RequireNoError(t, database.RenameBlocklist(a.ID, "c-list"), "rename")
	testutil.RequireErrorIs(t, database.RenameBlocklist("missing", "z"), db.ErrBlocklistNotFound, "rename missing")

	testutil.RequireNoError(t, database.DeleteBlocklist(a.ID), "delete")
	testutil.RequireErrorIs(t, database.DeleteBlocklist(a.ID), db.ErrBlocklistNotFound, "delete twice")

	entries, err := database.BlocklistEntries(a.ID)
	testutil.RequireNoError(t, err, "entries after delete")
	testutil.RequireLen(t, entries, 0, "sirens cascade-deleted")
}

func TestBlockSession_Lifecycle(t *testing.T) {
	database := testutil.NewTestDB(t)
	social := testutil.MakeBlocklist(t, database, testutil.WithWebsites("reddit.com"))
	games := testutil.MakeBlocklist(t, database, testutil.WithWindows("steam.exe"))

	now := time.Now().UTC().Truncate(time.Second)
	active := testutil.MakeSession(t, database, []*db.Blocklist{social, games}, testutil.Strict(),
		testutil.Window(now.Add(-time.Minute), now.Add(time.Hour)))
	future := testutil.MakeSession(t, database, []*db.Blocklist{social},
		testutil.Window(now.Add(time.Hour), now.Add(2*time.Hour)))
	expired := testutil.MakeSession(t, database, []*db.Blocklist{games},
		testutil.Window(now.Add(-2*time.Hour), now.Add(-time.Hour)))

	got, err := database.GetBlockSession(active.ID)
	testutil.RequireNoError(t, err, "get")
	if !got.StrictMode {
		t.Fatalf("expected strict mode")
	}
	if diff := cmp.Diff([]string{social.ID, games.ID}, got.BlocklistIDs); diff != "" {
		t.Fatalf("blocklist ids (-want +got):\n%s", diff)
	}
	if !got.IsActiveAt(now) || got.IsExpiredAt(now) {
		t.Fatalf("expected active, not expired")
	}

	activeList, err := database.ListActiveBlockSessions(now)
	testutil.RequireNoError(t, err, "list active")
	testutil.RequireLen(t, activeList, 1, "active sessions")
	testutil.RequireEqual(t, active.ID, activeList[0].ID, "active id")

	expiredList, err := database.FindExpiredBlockSessions(now)
	testutil.RequireNoError(t, err, "find expired")
	testutil.RequireLen(t, expiredList, 1, "expired sessions")
	testutil.RequireEqual(t, expired.ID, expiredList[0].ID, "expired id")

	all, err := database.ListBlockSessions()
	testutil.RequireNoError(t, err, "list all")
	testutil.RequireLen(t, all, 3, "all sessions")
	testutil.RequireEqual(t, future.ID, all[0].ID, "latest start first")

	testutil.RequireNoError(t, database.EndBlockSession(expired.ID, now), "end expired")
	testutil.RequireErrorIs(t, database.EndBlockSession(expired.ID, now), db.ErrBlockSessionNotFound, "end twice")

	ended, err := database.GetBlockSession(expired.ID)
	testutil.RequireNoError(t, err, "get ended")
	if ended.EndedAt == nil || ended.IsExpiredAt(now) || ended.IsActiveAt(now) {
		t.Fatalf("ended session should be neither active nor expired: %+v", ended)
	}

	_, err = database.GetBlockSession("missing")
	testutil.RequireErrorIs(t, err, db.ErrBlockSessionNotFound, "missing session")
}

func TestBlockSession_Validation(t *testing.T) {
	database := testutil.NewTestDB(t)
	b := testutil.MakeBlocklist(t, database)
	now := time.Now()

	err := database.CreateBlockSession(&db.BlockSession{StartsAt: now, EndsAt: now.Add(time.Hour)})
	if err == nil {
		t.Fatalf("expected error without blocklists")
	}

	err = database.CreateBlockSession(&db.BlockSession{BlocklistIDs: []string{b.ID}, StartsAt: now, EndsAt: now})
	testutil.RequireErrorIs(t, err, db.ErrInvalidSessionWindow, "zero-length window")

	// Both ends fall in the same second once stored.
	sub := time.Date(2026, 5, 1, 12, 0, 0, 200_000_000, time.UTC)
	err = database.CreateBlockSession(&db.BlockSession{BlocklistIDs: []string{b.ID}, StartsAt: sub, EndsAt: sub.Add(500 * time.Millisecond)})
	testutil.RequireErrorIs(t, err, db.ErrInvalidSessionWindow, "sub-second window")

	err = database.CreateBlockSession(&db.BlockSession{BlocklistIDs: []string{"missing"}, StartsAt: now, EndsAt: now.Add(time.Hour)})
	testutil.RequireErrorIs(t, err, db.ErrBlocklistNotFound, "unknown blocklist")

	all, err := database.ListBlockSessions()
	testutil.RequireNoError(t, err, "list")
	testutil.RequireLen(t, all, 0, "failed creates leave nothing behind")
}

func TestLaunches_RecordListPrune(t *testing.T) {
	database := testutil.NewTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"com.a", "reddit.com", "com.a"} {
		e := &db.LaunchEvent{Identifier: id, Category: siren.CategoryAndroid, DetectedAt: base.Add(time.Duration(i) * time.Minute)}
		testutil.RequireNoError(t, database.RecordLaunch(e), "record")
	}
	if err := database.RecordLaunch(&db.LaunchEvent{Identifier: " "}); err == nil {
		t.Fatalf("expected error for blank identifier")
	}

	recent, err := database.ListLaunches(2)
	testutil.RequireNoError(t, err, "list")
	testutil.RequireLen(t, recent, 2, "limited launches")
	testutil.RequireEqual(t, "com.a", recent[0].Identifier, "newest first")
	testutil.RequireEqual(t, "reddit.com", recent[1].Identifier, "second newest")

	n, err := database.PruneLaunches(base.Add(90 * time.Second))
	testutil.RequireNoError(t, err, "prune")
	testutil.RequireEqual(t, int64(2), n, "pruned")

	rest, err := database.ListLaunches(0)
	testutil.RequireNoError(t, err, "list all")
	testutil.RequireLen(t, rest, 1, "remaining launches")
}
