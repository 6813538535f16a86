package bus

import (
	"context"
	"testing"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
	"github.com/cloudzz-dev/memberchat/internal/server/models"
)

func TestLocalBusDeliversToForwarders(t *testing.T) {
	b, err := New(logger.Nop(), "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	var got []models.Event
	if err := b.StartForwarder(context.Background(), func(ev models.Event) { got = append(got, ev) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	ev := models.Event{Type: models.EventMessageCreated, Recipients: []string{"u1"}, Message: &models.Message{ID: "m1"}}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Message.ID != "m1" {
		t.Errorf("got %+v", got)
	}
}

func TestLocalBusRequiresCallback(t *testing.T) {
	if err := NewLocal().StartForwarder(context.Background(), nil); err == nil {
		t.Error("nil callback accepted")
	}
}

func TestRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.Nop(), "", "ch"); err == nil {
		t.Error("empty address accepted")
	}
}

func TestUninitializedRedisBus(t *testing.T) {
	var b *redisBus
	if err := b.Publish(context.Background(), models.Event{}); err == nil {
		t.Error("nil bus publish should fail")
	}
	if err := b.Close(); err != nil {
		t.Errorf("nil bus close: %v", err)
	}
}
