package publish

import (
	"context"
	"errors"
	"sync"
	"time"

	"desalination_plant/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeMqtt struct {
	mu           sync.Mutex
	pubs         []published
	subs         map[string]mqtt.MessageHandler
	unsubscribed []string
	subErr       error
	disconnected bool
}

func newFakeMqtt() *fakeMqtt { return &fakeMqtt{subs: map[string]mqtt.MessageHandler{}} }

func (f *fakeMqtt) SafePublish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakeMqtt) SafeSubscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr == nil {
		f.subs[topic] = cb
	}
	return doneToken{err: f.subErr}
}

func (f *fakeMqtt) SafeUnsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return doneToken{}
}

func (f *fakeMqtt) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakeMqtt) on(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.pubs {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakePlant struct {
	calls []string
	patch models.SetpointPatch
	err   error
}

func (p *fakePlant) Start(context.Context) error { p.calls = append(p.calls, "start"); return p.err }
func (p *fakePlant) Stop(context.Context) error  { p.calls = append(p.calls, "stop"); return p.err }
func (p *fakePlant) Clean(context.Context) error { p.calls = append(p.calls, "clean"); return p.err }
func (p *fakePlant) Reset(context.Context) error { p.calls = append(p.calls, "reset"); return p.err }
func (p *fakePlant) SetSetpoints(_ context.Context, sp models.SetpointPatch) error {
	p.calls = append(p.calls, "setpoints")
	p.patch = sp
	return p.err
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	block  chan struct{}
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type recordingPublisher struct {
	states   int
	events   []models.PlantEvent
	err      error
	closeErr error
}

func (r *recordingPublisher) PublishState(context.Context, models.PlantState) error {
	r.states++
	return r.err
}

func (r *recordingPublisher) PublishEvent(_ context.Context, e models.PlantEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error { return r.closeErr }

var errBroker = errors.New("broker unavailable")
