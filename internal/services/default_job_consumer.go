package services

import (
	"context"
	"sync"

	"github.com/lockwhz/ai-scan-service/internal/logger"
)

// Acker confirma (remove da fila) uma mensagem processada.
type Acker interface {
	Ack(ctx context.Context, receiptHandle string) error
}

// DefaultJobConsumer implementa um consumer que processa os jobs com um pool de workers.
type DefaultJobConsumer struct {
	Scanner JobScanner
	Acker   Acker
}

// Start bloqueia até jobChan ser fechado e todos os workers terminarem.
// Mensagens com erro transitório não são confirmadas e voltam para a fila.
func (c *DefaultJobConsumer) Start(ctx context.Context, jobChan <-chan *QueuedJob, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for qj := range jobChan {
				logger.Log.Debugf("[Consumer Worker %d] Processando job: %s", workerID, qj.Job.ScanID)
				_, err := ProcessJob(ctx, qj.Job, c.Scanner)
				switch {
				case err == nil:
					logger.Log.Debugf("[Consumer Worker %d] Job %s finalizado com sucesso", workerID, qj.Job.ScanID)
				case IsPermanent(err):
					logger.Log.Errorf("[Consumer Worker %d] Job %s descartado: %v", workerID, qj.Job.ScanID, err)
				default:
					logger.Log.Errorf("[Consumer Worker %d] Erro no job %s, será reentregue: %v", workerID, qj.Job.ScanID, err)
					continue
				}
				if c.Acker == nil || qj.ReceiptHandle == "" {
					continue
				}
				if err := c.Acker.Ack(ctx, qj.ReceiptHandle); err != nil {
					logger.Log.Errorf("[Consumer Worker %d] Erro ao confirmar job %s: %v", workerID, qj.Job.ScanID, err)
				}
			}
		}(i)
	}
	wg.Wait()
}
