package presence

import "testing"

func TestRegisterOverwritesPriorConnection(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection(1, "conn-a")
	r.JoinRoomGroup(10, "conn-a")

	// reconnect from a fresh socket
	r.RegisterConnection(1, "conn-b")

	if _, ok := r.ResolveUser("conn-a"); ok {
		t.Fatalf("stale handle still resolves to a user")
	}
	if _, ok := r.ResolveRoom("conn-a"); ok {
		t.Fatalf("stale handle still has room membership")
	}
	if uid, ok := r.ResolveUser("conn-b"); !ok || uid != 1 {
		t.Fatalf("new handle does not resolve, got (%d, %v)", uid, ok)
	}
	if c, ok := r.ResolveConn(1); !ok || c != "conn-b" {
		t.Fatalf("user does not resolve to the new handle")
	}
}

func TestJoinLeaveRoomGroup(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection(1, "c1")
	r.RegisterConnection(2, "c2")
	r.JoinRoomGroup(5, "c1")
	r.JoinRoomGroup(5, "c1") // idempotent
	r.JoinRoomGroup(5, "c2")

	if got := len(r.RoomConns(5)); got != 2 {
		t.Fatalf("room member count = %d, want 2", got)
	}

	r.LeaveRoomGroup(5, "c1")
	if rid, ok := r.ResolveRoom("c1"); ok {
		t.Fatalf("left connection still resolves to room %d", rid)
	}
	r.LeaveRoomGroup(5, "c2")
	if got := len(r.RoomConns(5)); got != 0 {
		t.Fatalf("empty room still has %d members", got)
	}
}

func TestJoinMovesConnectionBetweenRooms(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection(1, "c1")
	r.JoinRoomGroup(5, "c1")
	r.JoinRoomGroup(6, "c1")

	if rid, _ := r.ResolveRoom("c1"); rid != 6 {
		t.Fatalf("connection room = %d, want 6", rid)
	}
	if got := len(r.RoomConns(5)); got != 0 {
		t.Fatalf("old room still lists the moved connection")
	}
}

func TestUnregisterReturnsPairOnce(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection(7, "c7")
	r.JoinRoomGroup(3, "c7")

	uid, rid, ok := r.Unregister("c7")
	if !ok || uid != 7 || rid != 3 {
		t.Fatalf("Unregister = (%d, %d, %v), want (7, 3, true)", uid, rid, ok)
	}
	if _, _, ok := r.Unregister("c7"); ok {
		t.Fatalf("second Unregister must report not found")
	}
	if _, ok := r.ResolveConn(7); ok {
		t.Fatalf("user mapping survived Unregister")
	}
}

func TestUnregisterWithoutRoom(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection(9, "c9")
	uid, rid, ok := r.Unregister("c9")
	if !ok || uid != 9 || rid != 0 {
		t.Fatalf("Unregister = (%d, %d, %v), want (9, 0, true)", uid, rid, ok)
	}
}
