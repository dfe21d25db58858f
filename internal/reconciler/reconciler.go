package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/external"
	"storefront/internal/infra/metrics"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 結果が書き込まれたファイルを受け取る
type ResolvedListener func(ctx context.Context, f model.File)

type fileStore interface {
	jobRecorder
	FindByID(ctx context.Context, id string) (model.File, error)
	Resolve(ctx context.Context, id string, attempt int, state model.FileState, now time.Time) (bool, error)
}

type Reconciler struct {
	files      fileStore
	slicer     external.Slicer
	dispatcher *Dispatcher
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.RWMutex
	listeners []ResolvedListener
}

// rpsはスライサーへの状態確認の上限（1秒あたり）
func NewReconciler(files fileStore, slicer external.Slicer, rps float64, logger *zap.Logger) *Reconciler {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Reconciler{
		files:      files,
		slicer:     slicer,
		dispatcher: NewDispatcher(files, slicer, logger),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
		now:        time.Now,
	}
}

func (r *Reconciler) Dispatcher() *Dispatcher {
	return r.dispatcher
}

func (r *Reconciler) OnResolved(l ResolvedListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// ReconcileFileは1ファイル分。doneなら監視をやめてよい。
// 一時的な失敗はerrを返すがdoneはfalse（次の周期で再試行）。
func (r *Reconciler) ReconcileFile(ctx context.Context, id string) (bool, error) {
	f, err := r.files.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		// 削除済み
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if f.Status != model.FileStatusUnsliced {
		return true, nil
	}

	if f.SliceJobID == "" {
		return false, r.dispatcher.Dispatch(ctx, f)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}

	state, err := r.slicer.QueryStatus(ctx, f.ID, f.SliceJobID)
	if errors.Is(err, external.ErrJobNotFound) {
		metrics.SlicerPolls.WithLabelValues("job_not_found").Inc()
		r.logger.Warn("slicing job lost, resubmitting", zap.String("file_id", f.ID), zap.String("job_id", f.SliceJobID))
		return false, r.dispatcher.Dispatch(ctx, f)
	}
	if err != nil {
		metrics.SlicerPolls.WithLabelValues("error").Inc()
		return false, err
	}

	if state.Status() == model.FileStatusUnsliced {
		metrics.SlicerPolls.WithLabelValues("pending").Inc()
		return false, nil
	}
	metrics.SlicerPolls.WithLabelValues(string(state.Status())).Inc()

	now := r.now()
	applied, err := r.files.Resolve(ctx, f.ID, f.SliceAttempt, state, now)
	if err != nil {
		return false, err
	}
	if !applied {
		// 他のプロセスが先に書いた / 再スライスされた / 削除された
		r.logger.Debug("slicing result discarded", zap.String("file_id", f.ID), zap.Int("attempt", f.SliceAttempt))
		return true, nil
	}

	f.ApplyState(state, now)
	f.UpdatedAt = now
	metrics.FilesResolved.WithLabelValues(string(f.Status)).Inc()
	r.logger.Info("file resolved", zap.String("file_id", f.ID), zap.String("status", string(f.Status)), zap.Int("attempt", f.SliceAttempt))

	r.publish(ctx, f)
	return true, nil
}

func (r *Reconciler) publish(ctx context.Context, f model.File) {
	r.mu.RLock()
	ls := make([]ResolvedListener, len(r.listeners))
	copy(ls, r.listeners)
	r.mu.RUnlock()

	for _, l := range ls {
		l(ctx, f)
	}
}
