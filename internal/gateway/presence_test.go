package gateway

import (
	"testing"

	"github.com/accord-chat/accord/internal/domain"
)

func TestClampStatus(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"online", "online"},
		{"idle", "idle"},
		{"dnd", "dnd"},
		{"invisible", "invisible"},
		{"offline", "online"},
		{"busy", "online"},
		{"", "online"},
	}
	for _, tc := range cases {
		if got := ClampStatus(tc.in); got != tc.want {
			t.Errorf("ClampStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWireStatus(t *testing.T) {
	if got := WireStatus(domain.PresenceInvisible); got != domain.PresenceOffline {
		t.Errorf("WireStatus(invisible) = %q, want offline", got)
	}
	if got := WireStatus(domain.PresenceDnd); got != domain.PresenceDnd {
		t.Errorf("WireStatus(dnd) = %q, want dnd", got)
	}
}

func TestPresenceRefcount(t *testing.T) {
	table := NewPresenceTable()

	table.Connect("u1", "online", "")
	table.Connect("u1", "idle", "coding")

	pres, ok := table.Get("u1")
	if !ok {
		t.Fatal("Get after Connect: no entry")
	}
	if pres.Status != "idle" {
		t.Errorf("status = %q, want idle (latest connect wins)", pres.Status)
	}
	if len(pres.Activities) != 1 || pres.Activities[0] != "coding" {
		t.Errorf("activities = %v, want [coding]", pres.Activities)
	}

	if _, last := table.Disconnect("u1"); last {
		t.Error("first disconnect of two sessions reported last")
	}
	if _, ok := table.Get("u1"); !ok {
		t.Error("entry gone while a session remains")
	}

	if _, last := table.Disconnect("u1"); !last {
		t.Error("final disconnect not reported as last")
	}
	if _, ok := table.Get("u1"); ok {
		t.Error("entry survived the last disconnect")
	}
}

func TestPresenceSetRequiresSession(t *testing.T) {
	table := NewPresenceTable()

	if _, ok := table.Set("ghost", "dnd", ""); ok {
		t.Error("Set succeeded for a user with no live session")
	}

	table.Connect("u1", "online", "")
	pres, ok := table.Set("u1", "dnd", "in a meeting")
	if !ok {
		t.Fatal("Set failed for a connected user")
	}
	if pres.Status != "dnd" {
		t.Errorf("status = %q, want dnd", pres.Status)
	}
}

func TestSnapshotSkipsOfflineRender(t *testing.T) {
	table := NewPresenceTable()
	table.Connect("u1", "online", "")
	table.Connect("u2", "invisible", "")
	table.Connect("u3", "dnd", "")

	got := table.Snapshot([]string{"u1", "u2", "u3", "u4"})
	if len(got) != 2 {
		t.Fatalf("snapshot size = %d, want 2 (invisible and absent users skipped)", len(got))
	}
	if got[0].UserID != "u1" || got[0].Status != "online" {
		t.Errorf("snapshot[0] = %+v, want u1 online", got[0])
	}
	if got[1].UserID != "u3" || got[1].Status != "dnd" {
		t.Errorf("snapshot[1] = %+v, want u3 dnd", got[1])
	}
}
