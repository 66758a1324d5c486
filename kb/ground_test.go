package kb

import (
	"sync"
	"testing"

	"github.com/signalsfoundry/firesat/model"
)

func TestUpsertAppendsNewStations(t *testing.T) {
	reg := NewGroundRegistry()
	for _, id := range []int{4, 2, 9} {
		if added := reg.Upsert(model.GroundStation{ID: id, Operational: true}); !added {
			t.Fatalf("Upsert(%d) reported update, want add", id)
		}
	}

	rows := reg.List()
	if len(rows) != 3 {
		t.Fatalf("List len=%d, want 3", len(rows))
	}
	for i, want := range []int{4, 2, 9} {
		if rows[i].ID != want {
			t.Fatalf("row %d has id %d, want %d (insertion order)", i, rows[i].ID, want)
		}
	}
}

func TestUpsertSameIDReplacesRow(t *testing.T) {
	reg := NewGroundRegistry()
	reg.Upsert(model.GroundStation{ID: 1, ElevAngle: 5, Operational: true})
	reg.Upsert(model.GroundStation{ID: 2, ElevAngle: 5, Operational: true})

	if added := reg.Upsert(model.GroundStation{ID: 1, ElevAngle: 15, Operational: false}); added {
		t.Fatalf("second Upsert of id 1 reported add")
	}

	rows := reg.List()
	if len(rows) != 2 {
		t.Fatalf("List len=%d, want 2", len(rows))
	}
	count := 0
	for _, r := range rows {
		if r.ID == 1 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("found %d rows for id 1, want 1", count)
	}
	if rows[0].ID != 1 || rows[0].Operational || rows[0].ElevAngle != 15 {
		t.Fatalf("row for id 1 = %+v, want updated in place at index 0", rows[0])
	}
	if got, ok := reg.Get(1); !ok || got.Operational {
		t.Fatalf("Get(1) = %+v, %v; want latest operational=false", got, ok)
	}
}

func TestListIsSnapshot(t *testing.T) {
	reg := NewGroundRegistry()
	reg.Upsert(model.GroundStation{ID: 1, Operational: true})

	rows := reg.List()
	rows[0].Operational = false

	if got, _ := reg.Get(1); !got.Operational {
		t.Fatalf("mutating a List snapshot changed the registry")
	}
}

func TestResetEmptiesTable(t *testing.T) {
	reg := NewGroundRegistry()
	reg.Upsert(model.GroundStation{ID: 1})
	reg.Upsert(model.GroundStation{ID: 2})
	reg.Reset()

	if reg.Len() != 0 {
		t.Fatalf("Len after Reset = %d, want 0", reg.Len())
	}
	if _, ok := reg.Get(1); ok {
		t.Fatalf("Get(1) found a row after Reset")
	}
	if added := reg.Upsert(model.GroundStation{ID: 1}); !added {
		t.Fatalf("Upsert after Reset should append")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	reg := NewGroundRegistry()

	var events []Event
	unsubscribe := reg.Subscribe(func(e Event) { events = append(events, e) })

	reg.Upsert(model.GroundStation{ID: 1})
	reg.Upsert(model.GroundStation{ID: 1, Operational: true})
	unsubscribe()
	reg.Upsert(model.GroundStation{ID: 2})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventGroundAdded || events[1].Type != EventGroundUpdated {
		t.Fatalf("event types = %v, %v; want added, updated", events[0].Type, events[1].Type)
	}
	if events[1].Count != 1 || !events[1].Ground.Operational {
		t.Fatalf("update event = %+v", events[1])
	}
}

func TestUnsubscribeInSubscriptionOrder(t *testing.T) {
	reg := NewGroundRegistry()

	var a, b, c int
	unsubA := reg.Subscribe(func(Event) { a++ })
	unsubB := reg.Subscribe(func(Event) { b++ })
	reg.Subscribe(func(Event) { c++ })

	unsubA()
	unsubB()
	unsubA()
	reg.Upsert(model.GroundStation{ID: 1})

	if a != 0 || b != 0 {
		t.Fatalf("removed subscribers still notified: a=%d b=%d", a, b)
	}
	if c != 1 {
		t.Fatalf("remaining subscriber notified %d times, want 1", c)
	}
}

func TestConcurrentAccess(t *testing.T) {
	reg := NewGroundRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.List()
			_, _ = reg.Get(i)
		}()
		go func() {
			defer wg.Done()
			reg.Upsert(model.GroundStation{ID: i % 3, ElevAngle: float64(i)})
		}()
	}
	wg.Wait()

	if reg.Len() != 3 {
		t.Fatalf("Len = %d, want 3", reg.Len())
	}
}
