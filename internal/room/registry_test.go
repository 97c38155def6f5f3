package room

import (
	"fmt"
	"sync"
	"testing"
)

func TestFirstJoinBecomesMentor(t *testing.T) {
	reg := NewRegistry()

	if role := reg.Join("abc", "conn-1"); role != RoleMentor {
		t.Errorf("Expected first join to be mentor, got %s", role)
	}
	if role := reg.Join("abc", "conn-2"); role != RoleStudent {
		t.Errorf("Expected second join to be student, got %s", role)
	}
	if role := reg.Join("abc", "conn-3"); role != RoleStudent {
		t.Errorf("Expected third join to be student, got %s", role)
	}
}

func TestSeparateRoomsSeparateMentors(t *testing.T) {
	reg := NewRegistry()

	if role := reg.Join("room-a", "conn-1"); role != RoleMentor {
		t.Errorf("Expected mentor in room-a, got %s", role)
	}
	if role := reg.Join("room-b", "conn-2"); role != RoleMentor {
		t.Errorf("Expected mentor in room-b, got %s", role)
	}
}

func TestSnapshotCounts(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Snapshot("abc"); ok {
		t.Error("Snapshot of unknown room should report absent")
	}

	reg.Join("abc", "mentor")
	snap, ok := reg.Snapshot("abc")
	if !ok {
		t.Fatal("Room should exist")
	}
	if snap.Mentor != "mentor" {
		t.Errorf("Expected mentor 'mentor', got %q", snap.Mentor)
	}
	if snap.StudentCount != 0 {
		t.Errorf("Expected 0 students, got %d", snap.StudentCount)
	}

	reg.Join("abc", "s1")
	reg.Join("abc", "s2")
	snap, _ = reg.Snapshot("abc")
	if snap.StudentCount != 2 {
		t.Errorf("Expected 2 students, got %d", snap.StudentCount)
	}
}

func TestCountNeverNegative(t *testing.T) {
	reg := NewRegistry()

	reg.Join("abc", "mentor")
	reg.Join("abc", "s1")
	reg.Leave("abc", "mentor")

	snap, ok := reg.Snapshot("abc")
	if !ok {
		t.Fatal("Room should still exist while a student remains")
	}
	if snap.Mentor != "" {
		t.Errorf("Expected empty mentor slot, got %q", snap.Mentor)
	}
	if snap.StudentCount != 1 {
		t.Errorf("Expected 1 student, got %d", snap.StudentCount)
	}
}

func TestLeaveMentorReported(t *testing.T) {
	reg := NewRegistry()

	reg.Join("abc", "mentor")
	reg.Join("abc", "s1")

	dep := reg.Leave("abc", "mentor")
	if !dep.WasMember || !dep.WasMentor {
		t.Errorf("Expected mentor departure, got %+v", dep)
	}
	if dep.Empty {
		t.Error("Room should not be empty with a student remaining")
	}

	dep = reg.Leave("abc", "s1")
	if !dep.WasMember || dep.WasMentor {
		t.Errorf("Expected student departure, got %+v", dep)
	}
	if !dep.Empty {
		t.Error("Room should be empty after last member leaves")
	}
}

func TestEmptyRoomDeleted(t *testing.T) {
	reg := NewRegistry()

	reg.Join("abc", "conn-1")
	reg.Leave("abc", "conn-1")

	if _, ok := reg.Snapshot("abc"); ok {
		t.Error("Empty room should be deleted")
	}
	if reg.RoomCount() != 0 {
		t.Errorf("Expected 0 rooms, got %d", reg.RoomCount())
	}
}

func TestRejoinAfterEmptyIsMentor(t *testing.T) {
	reg := NewRegistry()

	reg.Join("abc", "conn-1")
	reg.Leave("abc", "conn-1")

	if role := reg.Join("abc", "conn-1"); role != RoleMentor {
		t.Errorf("Rejoin of purged room should be mentor, got %s", role)
	}
}

func TestJoinTakesVacantMentorSlot(t *testing.T) {
	reg := NewRegistry()

	reg.Join("abc", "mentor")
	reg.Join("abc", "s1")
	reg.Leave("abc", "mentor")

	// Room still alive without a mentor, eviction pending.
	if role := reg.Join("abc", "conn-3"); role != RoleMentor {
		t.Errorf("Join on mentorless room should take the slot, got %s", role)
	}
}

func TestLeaveIdempotent(t *testing.T) {
	reg := NewRegistry()

	if dep := reg.Leave("nope", "conn-1"); dep.WasMember {
		t.Error("Leave on unknown room should be a no-op")
	}

	reg.Join("abc", "conn-1")
	reg.Join("abc", "conn-2")
	reg.Leave("abc", "conn-2")
	if dep := reg.Leave("abc", "conn-2"); dep.WasMember {
		t.Error("Double leave should be a no-op")
	}
}

func TestDisconnectAll(t *testing.T) {
	reg := NewRegistry()

	reg.Join("abc", "mentor")
	reg.Join("abc", "s1")

	deps := reg.DisconnectAll("s1")
	if len(deps) != 1 {
		t.Fatalf("Expected 1 departure, got %d", len(deps))
	}
	if deps[0].RoomID != "abc" || deps[0].WasMentor {
		t.Errorf("Unexpected departure %+v", deps[0])
	}

	if deps := reg.DisconnectAll("s1"); len(deps) != 0 {
		t.Errorf("Repeated disconnect should find nothing, got %d", len(deps))
	}

	deps = reg.DisconnectAll("mentor")
	if len(deps) != 1 || !deps[0].WasMentor || !deps[0].Empty {
		t.Errorf("Expected empty mentor departure, got %+v", deps)
	}
}

func TestPurgeIdempotent(t *testing.T) {
	reg := NewRegistry()

	reg.Join("abc", "mentor")
	reg.Join("abc", "s1")
	reg.Purge("abc")

	if _, ok := reg.Snapshot("abc"); ok {
		t.Error("Purged room should be gone")
	}

	// Purging again must not be an error.
	reg.Purge("abc")
}

func TestConcurrentJoinsSingleMentor(t *testing.T) {
	reg := NewRegistry()

	const n = 100
	roles := make(chan Role, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roles <- reg.Join("abc", fmt.Sprintf("conn-%d", i))
		}(i)
	}
	wg.Wait()
	close(roles)

	mentors := 0
	for role := range roles {
		if role == RoleMentor {
			mentors++
		}
	}
	if mentors != 1 {
		t.Errorf("Expected exactly 1 mentor, got %d", mentors)
	}

	snap, _ := reg.Snapshot("abc")
	if snap.StudentCount != n-1 {
		t.Errorf("Expected %d students, got %d", n-1, snap.StudentCount)
	}
}
