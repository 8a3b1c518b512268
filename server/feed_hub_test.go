package server

import (
	"encoding/json"
	"testing"
	"time"

	"noddymix/model"
)

func TestDispatchReachesOnlyFollowers(t *testing.T) {
	hub := NewFeedHub()
	go hub.Run()
	defer hub.Stop()

	follower := &feedClient{hub: hub, send: make(chan []byte, 1), userID: 1,
		followed: map[int64]bool{7: true}}
	bystander := &feedClient{hub: hub, send: make(chan []byte, 1), userID: 2,
		followed: map[int64]bool{}}
	if !hub.add(follower) || !hub.add(bystander) {
		t.Fatal("add failed on a running hub")
	}

	payload, err := json.Marshal(&model.Activity{ID: 1, ActorID: 7, Verb: "played"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	hub.incoming <- payload

	var got model.Activity
	select {
	case delivered := <-follower.send:
		if err := json.Unmarshal(delivered, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("follower never received the activity")
	}
	if got.ActorID != 7 || got.Verb != "played" {
		t.Errorf("delivered activity = %+v", got)
	}

	select {
	case delivered := <-bystander.send:
		t.Errorf("bystander received %s", delivered)
	default:
	}
}

func TestStopUnblocksClientTeardown(t *testing.T) {
	hub := NewFeedHub()
	go hub.Run()

	client := &feedClient{hub: hub, send: make(chan []byte, 1), userID: 1}
	if !hub.add(client) {
		t.Fatal("add failed on a running hub")
	}
	hub.Stop()

	// The read pump unregisters on its way out; after Stop that must not
	// hang even though the hub loop is gone.
	done := make(chan struct{})
	go func() {
		hub.remove(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("remove blocked after hub stop")
	}
}

func TestStoppedHubRefusesClients(t *testing.T) {
	hub := NewFeedHub()
	hub.Stop()

	client := &feedClient{hub: hub, send: make(chan []byte, 1), userID: 1}
	if hub.add(client) {
		t.Error("add succeeded on a stopped hub")
	}
	hub.remove(client)
}
