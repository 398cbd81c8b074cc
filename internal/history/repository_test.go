package history

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/clipdesk/clipdesk/internal/db"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func TestSessionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s := &Session{
		ID:        NewID(),
		VideoID:   "vid-1",
		Filename:  "workout.mov",
		SizeBytes: 2048,
		DurationS: 61.5,
		Status:    SessionStatusUploaded,
	}
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := repo.UpdateSessionStatus(ctx, s.ID, SessionStatusProcessing, ""); err != nil {
		t.Fatalf("UpdateSessionStatus() error = %v", err)
	}
	if err := repo.UpdateSessionResult(ctx, s.ID, []string{"Squat", "goblet squat"}, 4); err != nil {
		t.Fatalf("UpdateSessionResult() error = %v", err)
	}
	if err := repo.UpdateSessionStatus(ctx, s.ID, SessionStatusProcessed, ""); err != nil {
		t.Fatalf("UpdateSessionStatus() error = %v", err)
	}

	got, err := repo.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetSession() = nil")
	}
	if got.Status != SessionStatusProcessed || got.ClipCount != 4 || got.DurationS != 61.5 {
		t.Errorf("session = %+v", got)
	}
	if !reflect.DeepEqual(got.Movements, []string{"Squat", "goblet squat"}) {
		t.Errorf("movements = %q", got.Movements)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.GetSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetSession() = %+v, want nil", got)
	}
}

func TestFailedSessionKeepsError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s := &Session{ID: NewID(), VideoID: "vid-2", Filename: "b.mp4", Status: SessionStatusProcessing}
	repo.CreateSession(ctx, s)
	repo.UpdateSessionStatus(ctx, s.ID, SessionStatusFailed, "HTTP 500")

	got, _ := repo.GetSession(ctx, s.ID)
	if got.Status != SessionStatusFailed || got.Error != "HTTP 500" {
		t.Fatalf("session = %+v", got)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"a.mov", "b.mov", "c.mov"} {
		if err := repo.CreateSession(ctx, &Session{ID: NewID(), VideoID: name, Filename: name, Status: SessionStatusUploaded}); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
	}

	sessions, err := repo.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2", len(sessions))
	}
	if sessions[0].Filename != "c.mov" || sessions[1].Filename != "b.mov" {
		t.Errorf("order = %s, %s", sessions[0].Filename, sessions[1].Filename)
	}
}

func TestDownloads(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s1 := &Session{ID: NewID(), VideoID: "v1", Filename: "a.mov", Status: SessionStatusProcessed}
	s2 := &Session{ID: NewID(), VideoID: "v2", Filename: "b.mov", Status: SessionStatusProcessed}
	repo.CreateSession(ctx, s1)
	repo.CreateSession(ctx, s2)

	for _, d := range []*Download{
		{ID: NewID(), SessionID: s1.ID, Path: "/tmp/one.zip", ClipCount: 2, SizeBytes: 100},
		{ID: NewID(), SessionID: s2.ID, Path: "/tmp/two.zip", ClipCount: 1, SizeBytes: 50},
	} {
		if err := repo.CreateDownload(ctx, d); err != nil {
			t.Fatalf("CreateDownload() error = %v", err)
		}
	}

	all, err := repo.ListDownloads(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if len(all) != 2 || all[0].Path != "/tmp/two.zip" {
		t.Fatalf("all downloads = %+v", all)
	}

	mine, err := repo.ListDownloads(ctx, s1.ID, 10)
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if len(mine) != 1 || mine[0].ClipCount != 2 {
		t.Fatalf("session downloads = %+v", mine)
	}
}

func TestConfig(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}

	repo.SetConfig(ctx, "auth_token", "one")
	repo.SetConfig(ctx, "auth_token", "two")
	v, _ = repo.GetConfig(ctx, "auth_token")
	if v != "two" {
		t.Fatalf("GetConfig = %q, want two", v)
	}
}

func TestSQLiteRepository_ImplementsRepository(t *testing.T) {
	var _ Repository = (*SQLiteRepository)(nil)
}
