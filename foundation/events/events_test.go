package events_test

import (
	"testing"

	"github.com/meridian-chain/meridian/foundation/events"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func TestSubscribeOrdering(t *testing.T) {
	t.Log("Given the need to deliver to subscribers in registration order.")
	{
		hub := events.NewHub[int]()

		var order []string
		hub.Subscribe(func(int) { order = append(order, "first") })
		hub.Subscribe(func(int) { order = append(order, "second") })

		hub.Publish(1)
		hub.Publish(2)

		want := []string{"first", "second", "first", "second"}
		if len(order) != len(want) {
			t.Fatalf("\t%s\tShould deliver every event to every subscriber.", failed)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("\t%s\tShould keep registration order, got %v.", failed, order)
			}
		}
		t.Logf("\t%s\tShould deliver in registration order.", success)
	}
}

func TestChannels(t *testing.T) {
	t.Log("Given the need to feed acquired channels without blocking.")
	{
		hub := events.NewHub[string]()

		ch := hub.Acquire("feed")
		if hub.Acquire("feed") != ch {
			t.Fatalf("\t%s\tShould return the same channel for the same id.", failed)
		}
		t.Logf("\t%s\tShould return the same channel for the same id.", success)

		hub.Publish("hello")
		select {
		case msg := <-ch:
			if msg != "hello" {
				t.Fatalf("\t%s\tShould receive the published event, got %q.", failed, msg)
			}
		default:
			t.Fatalf("\t%s\tShould receive the published event.", failed)
		}
		t.Logf("\t%s\tShould receive the published event.", success)

		// A full channel drops instead of stalling the publisher.
		for i := 0; i < 200; i++ {
			hub.Publish("flood")
		}
		t.Logf("\t%s\tShould never block on a slow reader.", success)

		if err := hub.Release("feed"); err != nil {
			t.Fatalf("\t%s\tShould be able to release the channel: %v", failed, err)
		}
		if _, open := <-ch; open {
			// Drain until the close lands.
			for range ch {
			}
		}
		t.Logf("\t%s\tShould close the channel on release.", success)

		if err := hub.Release("feed"); err == nil {
			t.Fatalf("\t%s\tShould reject releasing an unknown id.", failed)
		}
		t.Logf("\t%s\tShould reject releasing an unknown id.", success)

		ch2 := hub.Acquire("other")
		hub.Shutdown()
		if _, open := <-ch2; open {
			t.Fatalf("\t%s\tShould close every channel on shutdown.", failed)
		}
		t.Logf("\t%s\tShould close every channel on shutdown.", success)
	}
}
