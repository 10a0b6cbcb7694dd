package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/entraops/azuregraph/internal/logger"
)

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSPublisherSendsEvent(t *testing.T) {
	client := &fakeSNSClient{}
	pub := &snsPublisher{
		id:       "topic",
		typ:      TypeSNS,
		topicARN: "arn:aws:sns:eu-west-1:123:users",
		client:   client,
		log:      &logger.NopLogger{},
	}

	evt := New(TypeUserUpdated, "user-1", "contoso.onmicrosoft.com", nil)
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.input == nil {
		t.Fatal("expected a Publish call")
	}
	if got := aws.ToString(client.input.TopicArn); got != pub.topicARN {
		t.Fatalf("unexpected topic arn %q", got)
	}

	var decoded Event
	if err := json.Unmarshal([]byte(aws.ToString(client.input.Message)), &decoded); err != nil {
		t.Fatalf("message is not an event: %v", err)
	}
	if decoded.Type != TypeUserUpdated || decoded.UserID != "user-1" {
		t.Fatalf("unexpected event payload %+v", decoded)
	}

	attr, ok := client.input.MessageAttributes["event_type"]
	if !ok {
		t.Fatal("expected event_type message attribute")
	}
	if got := aws.ToString(attr.StringValue); got != TypeUserUpdated {
		t.Fatalf("unexpected event_type attribute %q", got)
	}
}

func TestSNSPublisherPublishFailure(t *testing.T) {
	pubErr := errors.New("access denied")
	pub := &snsPublisher{
		id:       "topic",
		typ:      TypeSNS,
		topicARN: "arn:aws:sns:eu-west-1:123:users",
		client:   &fakeSNSClient{err: pubErr},
		log:      &logger.NopLogger{},
	}

	err := pub.Publish(context.Background(), New(TypeUserCreated, "user-1", "t", nil))
	if !errors.Is(err, pubErr) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestNewSNSPublisherRequiresConfig(t *testing.T) {
	if _, err := newSNSPublisher(context.Background(), SinkConfig{ID: "topic", Type: TypeSNS}, nil); err == nil {
		t.Fatal("expected error for missing sns configuration")
	}
}
