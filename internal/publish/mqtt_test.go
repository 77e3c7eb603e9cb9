package publish

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"desalination_plant/internal/fieldio"
	"desalination_plant/internal/models"
)

func newBridge(t *testing.T) (*MQTTBridge, *fakeMqtt, *fakePlant) {
	t.Helper()
	client := newFakeMqtt()
	plant := &fakePlant{}
	b := NewMQTTBridge(client, MQTTConfig{Prefix: "ro1/"}, nil)
	if err := b.Subscribe(plant); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return b, client, plant
}

func TestMQTTBridge_PublishStateRetained(t *testing.T) {
	b, client, _ := newBridge(t)
	if err := b.PublishState(context.Background(), models.PlantState{Step: "PRODUCTION", TripCodes: nil}); err != nil {
		t.Fatalf("PublishState: %v", err)
	}
	got := client.on("ro1/state")
	if len(got) != 1 || !got[0].retained {
		t.Fatalf("state publishes = %+v", got)
	}
	var st models.PlantState
	if err := json.Unmarshal(got[0].payload, &st); err != nil || st.Step != "PRODUCTION" {
		t.Fatalf("payload = %s, %v", got[0].payload, err)
	}
}

func TestMQTTBridge_PublishEvent(t *testing.T) {
	b, client, _ := newBridge(t)
	ev := models.PlantEvent{EventID: "e1", Type: models.EventTrip, OccurredAt: time.Now().UTC()}
	if err := b.PublishEvent(context.Background(), ev); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	got := client.on("ro1/events")
	if len(got) != 1 || got[0].retained {
		t.Fatalf("event publishes = %+v", got)
	}
	if !strings.Contains(string(got[0].payload), `"TRIP"`) {
		t.Fatalf("payload = %s", got[0].payload)
	}
}

func TestMQTTBridge_Commands(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		call    string
		ok      bool
	}{
		{"ro1/cmd/start", "", "start", true},
		{"ro1/cmd/stop", "", "stop", true},
		{"ro1/cmd/clean", "", "clean", true},
		{"ro1/cmd/reset", "", "reset", true},
		{"ro1/cmd/setpoints", `{"membrane_pressure_bar": 58}`, "setpoints", true},
		{"ro1/cmd/setpoints", `{bad`, "", false},
		{"ro1/cmd/flush", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.topic+tc.payload, func(t *testing.T) {
			_, client, plant := newBridge(t)
			handler := client.subs["ro1/cmd/#"]
			if handler == nil {
				t.Fatal("bridge did not subscribe to ro1/cmd/#")
			}
			handler(nil, fakeMessage{topic: tc.topic, payload: []byte(tc.payload)})

			if tc.call != "" && (len(plant.calls) != 1 || plant.calls[0] != tc.call) {
				t.Fatalf("calls = %v, want [%s]", plant.calls, tc.call)
			}
			if tc.call == "" && len(plant.calls) != 0 {
				t.Fatalf("unexpected calls %v", plant.calls)
			}

			acks := client.on("ro1/ack")
			if len(acks) != 1 {
				t.Fatalf("acks = %d", len(acks))
			}
			var ack commandAck
			if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
				t.Fatalf("ack payload: %v", err)
			}
			if ack.OK != tc.ok {
				t.Fatalf("ack = %+v, want ok=%v", ack, tc.ok)
			}
			if !tc.ok && ack.Error == "" {
				t.Fatal("failed ack without error text")
			}
		})
	}
}

func TestMQTTBridge_SetpointPatchDecoded(t *testing.T) {
	b, _, plant := newBridge(t)
	if err := b.HandleCommand(context.Background(), "setpoints", []byte(`{"ph": 7.1}`)); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if plant.patch.PH == nil || *plant.patch.PH != 7.1 || plant.patch.MembranePressureBar != nil {
		t.Fatalf("patch = %+v", plant.patch)
	}
}

func TestMQTTBridge_CommandErrorIsAcked(t *testing.T) {
	_, client, plant := newBridge(t)
	plant.err = context.DeadlineExceeded
	client.subs["ro1/cmd/#"](nil, fakeMessage{topic: "ro1/cmd/start"})
	acks := client.on("ro1/ack")
	if len(acks) != 1 || !strings.Contains(string(acks[0].payload), "deadline") {
		t.Fatalf("acks = %+v", acks)
	}
}

func TestMQTTBridge_SubscribeError(t *testing.T) {
	client := newFakeMqtt()
	client.subErr = errBroker
	b := NewMQTTBridge(client, MQTTConfig{}, nil)
	if err := b.Subscribe(&fakePlant{}); err == nil || !strings.Contains(err.Error(), "desal/cmd/#") {
		t.Fatalf("Subscribe err = %v", err)
	}
}

func TestMQTTBridge_PublishOnlyWithoutPlant(t *testing.T) {
	client := newFakeMqtt()
	b := NewMQTTBridge(client, MQTTConfig{Prefix: "ro1"}, nil)
	if err := b.PublishState(context.Background(), models.PlantState{Step: "IDLE"}); err != nil {
		t.Fatalf("PublishState: %v", err)
	}
	if len(client.subs) != 0 {
		t.Fatalf("unexpected subscriptions: %v", client.subs)
	}
	if err := b.Close(); err != nil || !client.disconnected || len(client.unsubscribed) != 0 {
		t.Fatalf("Close: err=%v disconnected=%v unsub=%v", err, client.disconnected, client.unsubscribed)
	}
}

func TestMQTTBridge_Close(t *testing.T) {
	b, client, _ := newBridge(t)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !client.disconnected || len(client.unsubscribed) != 1 || client.unsubscribed[0] != "ro1/cmd/#" {
		t.Fatalf("close: disconnected=%v unsub=%v", client.disconnected, client.unsubscribed)
	}
}

func TestMQTTBridge_SubscribeTags(t *testing.T) {
	client := newFakeMqtt()
	b := NewMQTTBridge(client, MQTTConfig{Prefix: "ro1"}, nil)
	tags := fieldio.NewTagTable()
	if err := b.SubscribeTags(tags); err != nil {
		t.Fatalf("SubscribeTags: %v", err)
	}
	handler := client.subs["ro1/tags/+"]
	if handler == nil {
		t.Fatal("no subscription on ro1/tags/+")
	}

	handler(nil, fakeMessage{topic: "ro1/tags/" + fieldio.TagMembranePressure, payload: []byte(" 55.5 ")})
	handler(nil, fakeMessage{topic: "ro1/tags/" + fieldio.TagLeakDetected, payload: []byte("true")})
	handler(nil, fakeMessage{topic: "ro1/tags/" + fieldio.TagPH, payload: []byte("n/a")})

	if v, ok := tags.Read(fieldio.TagMembranePressure); !ok || v != 55.5 {
		t.Fatalf("membrane pressure = %v, %v", v, ok)
	}
	if v, _ := tags.Read(fieldio.TagLeakDetected); v != 1 {
		t.Fatalf("leak = %v", v)
	}
	if _, ok := tags.Read(fieldio.TagPH); ok {
		t.Fatal("invalid payload was written")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(client.unsubscribed) != 1 || client.unsubscribed[0] != "ro1/tags/+" {
		t.Fatalf("unsubscribed = %v", client.unsubscribed)
	}
}
