package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

const itPrefix = "events:comms_publisher_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", itPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", itPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", itPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) chan *FlowInvokedEvent {
	t.Helper()
	received := make(chan *FlowInvokedEvent, 1)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event FlowInvokedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", itPrefix, err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe to %s: %v", itPrefix, subject, err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
	return received
}

func TestCommsPublisher_PublishInvoked_BothSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)

	perFlow := subscribeEvents(t, nc, "flows.invoked.jokeFlow")
	global := subscribeEvents(t, nc, "flows.invoked")
	if err := nc.Flush(); err != nil {
		t.Fatalf("%s - flush failed: %v", itPrefix, err)
	}

	event := &FlowInvokedEvent{
		Flow:         "jokeFlow",
		InvocationID: "inv-42",
		Mode:         ModeBuffered,
		Status:       "OK",
		HTTPStatus:   200,
		DurationMs:   3,
		Timestamp:    "2025-01-01T00:00:00Z",
	}

	if err := publisher.PublishInvoked(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishInvoked failed: %v", itPrefix, err)
	}
	nc.Flush()

	for _, ch := range []struct {
		name string
		ch   chan *FlowInvokedEvent
	}{
		{"per-flow", perFlow},
		{"global", global},
	} {
		select {
		case got := <-ch.ch:
			if got.Flow != "jokeFlow" || got.InvocationID != "inv-42" {
				t.Errorf("%s - %s subject got %+v", itPrefix, ch.name, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s - timeout waiting for %s event", itPrefix, ch.name)
		}
	}
}

func TestCommsPublisher_CustomGlobalSubject(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: "audit.flows"})
	global := subscribeEvents(t, nc, "audit.flows")
	nc.Flush()

	if err := publisher.PublishInvoked(context.Background(), &FlowInvokedEvent{Flow: "menu", Status: "INTERNAL", HTTPStatus: 500}); err != nil {
		t.Fatalf("%s - PublishInvoked failed: %v", itPrefix, err)
	}
	nc.Flush()

	select {
	case got := <-global:
		if got.Status != "INTERNAL" || got.HTTPStatus != 500 {
			t.Errorf("%s - got %+v", itPrefix, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for custom global event", itPrefix)
	}
}
