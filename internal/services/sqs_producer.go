package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/models"
)

// SQSAPI é o subconjunto do client SQS usado pelo producer.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// QueuedJob é um job com o receipt handle necessário para confirmá-lo.
type QueuedJob struct {
	Job           *models.ScanJob
	ReceiptHandle string
}

// DefaultSQSProducer lê mensagens da SQS e produz jobs em um channel.
type DefaultSQSProducer struct {
	Client          SQSAPI
	QueueURL        string
	MaxMessages     int32
	WaitTimeSeconds int32
	ErrorBackoff    time.Duration
}

// Start faz long polling até ctx ser cancelado e então fecha o channel.
func (p *DefaultSQSProducer) Start(ctx context.Context) <-chan *QueuedJob {
	maxMessages := p.MaxMessages
	if maxMessages <= 0 || maxMessages > 10 {
		maxMessages = 10
	}
	wait := p.WaitTimeSeconds
	if wait <= 0 {
		wait = 20
	}
	backoff := p.ErrorBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	jobChan := make(chan *QueuedJob, maxMessages)
	go func() {
		defer close(jobChan)
		for ctx.Err() == nil {
			out, err := p.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(p.QueueURL),
				MaxNumberOfMessages: maxMessages,
				WaitTimeSeconds:     wait,
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Log.Errorf("SQSProducer: erro ao receber mensagens: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				continue
			}

			for _, msg := range out.Messages {
				receipt := aws.ToString(msg.ReceiptHandle)
				var job models.ScanJob
				if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
					logger.Log.Errorf("SQSProducer: mensagem %s inválida, descartando: %v", aws.ToString(msg.MessageId), err)
					if err := p.Ack(ctx, receipt); err != nil {
						logger.Log.Errorf("SQSProducer: erro ao descartar mensagem: %v", err)
					}
					continue
				}
				if job.ScanID == "" {
					job.ScanID = uuid.New().String()
				}
				if job.MessageCreatedAt.IsZero() {
					job.MessageCreatedAt = time.Now().UTC()
				}

				select {
				case jobChan <- &QueuedJob{Job: &job, ReceiptHandle: receipt}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return jobChan
}

// Ack remove a mensagem da fila.
func (p *DefaultSQSProducer) Ack(ctx context.Context, receiptHandle string) error {
	_, err := p.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return err
}
