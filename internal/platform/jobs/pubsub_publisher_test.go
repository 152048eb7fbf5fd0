package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pulsefit/api/internal/services"
)

func TestPubSubSettlementPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "settlement-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubSettlementPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubSettlementPublisher: %v", err)
	}

	occurredAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.SettlementEvent{
		OrderID:        "order_01HZX",
		TransactionID:  "pi_test",
		UserID:         "user-1",
		SubscriptionID: "plan-1",
		Status:         "complete",
		Amount:         29.99,
		Currency:       "usd",
		OccurredAt:     occurredAt,
	}

	if _, err := publisher.PublishSettlementEvent(ctx, event); err != nil {
		t.Fatalf("PublishSettlementEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.SettlementEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.TransactionID != event.TransactionID {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["status"]; attr != "complete" {
		t.Fatalf("expected status attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "order_01HZX" {
		t.Fatalf("expected orderId attribute, got %q", attr)
	}
}

func TestPubSubSettlementPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubSettlementPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
