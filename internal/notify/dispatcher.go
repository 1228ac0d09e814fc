package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shepherd/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher 按批次发送通知：批内并发受 Concurrency 限制，批与批之间固定间隔 Delay。
// 单个接收人失败只计数，不中断整体发送；ctx 取消后停止后续批次。
type Dispatcher struct {
	Notifier    Notifier
	BatchSize   int
	Concurrency int
	Delay       time.Duration
}

// Report 汇总一次分发的结果
type Report struct {
	Total   int
	Sent    int
	Skipped int
	Failed  int
}

// Dispatch 向 recipients 发送 build 生成的消息
func (d Dispatcher) Dispatch(ctx context.Context, recipients []Recipient, build func(Recipient) Message) (Report, error) {
	report := Report{Total: len(recipients)}
	if d.Notifier == nil || len(recipients) == 0 {
		return report, nil
	}

	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var sent, skipped, failed atomic.Int64
	for start := 0; start < len(recipients); start += batchSize {
		if start > 0 && d.Delay > 0 {
			timer := time.NewTimer(d.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				report.Sent, report.Skipped, report.Failed = int(sent.Load()), int(skipped.Load()), int(failed.Load())
				return report, ctx.Err()
			case <-timer.C:
			}
		}

		end := min(start+batchSize, len(recipients))
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(concurrency)
		for _, recipient := range recipients[start:end] {
			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				err := d.Notifier.Notify(groupCtx, recipient, build(recipient))
				switch {
				case err == nil:
					sent.Add(1)
				case errors.Is(err, ErrNoChannel):
					skipped.Add(1)
				default:
					failed.Add(1)
					logging.Logger.Warn("notification failed", zap.Uint("member_id", recipient.MemberID), zap.Error(err))
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			report.Sent, report.Skipped, report.Failed = int(sent.Load()), int(skipped.Load()), int(failed.Load())
			return report, err
		}
		if err := ctx.Err(); err != nil {
			report.Sent, report.Skipped, report.Failed = int(sent.Load()), int(skipped.Load()), int(failed.Load())
			return report, err
		}
	}

	report.Sent, report.Skipped, report.Failed = int(sent.Load()), int(skipped.Load()), int(failed.Load())
	return report, nil
}
