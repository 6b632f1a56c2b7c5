package awsutil

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rotisserie/eris"
)

// SQSClient publishes JSON messages to a queue.
type SQSClient interface {
	// SendJSON marshals v and sends it with a "kind" string attribute so
	// consumers can route without decoding the body.
	SendJSON(ctx context.Context, queueURL, kind string, v any) error
}

// SQSAPI is the subset of the SQS client we use.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsClient struct {
	client SQSAPI
}

// NewSQSClient creates an SQSClient from an SQS service client.
func NewSQSClient(client SQSAPI) SQSClient {
	return &sqsClient{client: client}
}

func (c *sqsClient) SendJSON(ctx context.Context, queueURL, kind string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "marshal %s message", kind)
	}
	_, err = c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(kind)},
		},
	})
	if err != nil {
		return eris.Wrapf(err, "send %s message", kind)
	}
	return nil
}
