// Package reconciler はスライスジョブの投入と結果の取り込みを行う。
// スライサーからの完了通知は無いので、未完了のファイルをポーリングする。
package reconciler

import (
	"context"

	"storefront/internal/domain/model"
	"storefront/internal/external"
	"storefront/internal/infra/metrics"

	"go.uber.org/zap"
)

// ジョブIDの記録だけ使う
type jobRecorder interface {
	SetJob(ctx context.Context, id string, attempt int, jobID string) error
}

// Dispatcherはジョブを投入してIDを記録する。完了は待たない。
type Dispatcher struct {
	files  jobRecorder
	slicer external.Slicer
	logger *zap.Logger
}

func NewDispatcher(files jobRecorder, slicer external.Slicer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{files: files, slicer: slicer, logger: logger}
}

// Dispatchが失敗してもファイルはunslicedのまま残り、次の周期で再投入される。
func (d *Dispatcher) Dispatch(ctx context.Context, f model.File) error {
	jobID, err := d.slicer.Submit(ctx, f.ID, f.BlobURL)
	if err != nil {
		metrics.SlicerDispatches.WithLabelValues("failed").Inc()
		d.logger.Warn("slicing submit failed", zap.String("file_id", f.ID), zap.Int("attempt", f.SliceAttempt), zap.Error(err))
		return err
	}

	if err := d.files.SetJob(ctx, f.ID, f.SliceAttempt, jobID); err != nil {
		metrics.SlicerDispatches.WithLabelValues("failed").Inc()
		d.logger.Error("record slicing job failed", zap.String("file_id", f.ID), zap.String("job_id", jobID), zap.Error(err))
		return err
	}

	metrics.SlicerDispatches.WithLabelValues("submitted").Inc()
	d.logger.Info("slicing submitted", zap.String("file_id", f.ID), zap.String("job_id", jobID), zap.Int("attempt", f.SliceAttempt))
	return nil
}
