package store

import "testing"

func TestEventBusFiltersAndUnsubscribes(t *testing.T) {
	eb := NewEventBus(testLogger())

	var saved, all int
	unsubSaved := eb.On(EventDocumentSaved, func(Event) { saved++ })
	eb.OnAll(func(Event) { all++ })

	eb.Emit(Event{Type: EventDocumentSaved})
	eb.Emit(Event{Type: EventRecordAdded})
	if saved != 1 || all != 2 {
		t.Fatalf("saved = %d, all = %d; want 1, 2", saved, all)
	}

	unsubSaved()
	eb.Emit(Event{Type: EventDocumentSaved})
	if saved != 1 || all != 3 {
		t.Errorf("saved = %d, all = %d; want 1, 3", saved, all)
	}
}

func TestEventBusRecoversPanics(t *testing.T) {
	eb := NewEventBus(testLogger())
	called := false
	eb.OnAll(func(Event) { panic("boom") })
	eb.OnAll(func(Event) { called = true })

	eb.Emit(Event{Type: EventDocumentLoaded})
	if !called {
		t.Error("handler after the panicking one was not called")
	}
}
