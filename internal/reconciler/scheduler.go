package reconciler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/metrics"

	"go.uber.org/zap"
)

const seedLimit = 1000

type fileReconciler interface {
	ReconcileFile(ctx context.Context, id string) (bool, error)
}

type unslicedLister interface {
	ListUnsliced(ctx context.Context, limit int) ([]model.File, error)
}

// Schedulerは監視中のファイルを周期的に確認する。
// 監視対象が空の間はgoroutineを止める。
type Scheduler struct {
	rec         fileReconciler
	files       unslicedLister
	minInterval time.Duration
	maxInterval time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	watched  map[string]struct{}
	inFlight map[string]struct{}
	started  bool
	running  bool
	// 前回の読み込みが上限まで埋まっていた（DBにまだ残っている）
	backlog bool
	ctx     context.Context
	cancel  context.CancelFunc
	wake    chan struct{}
	wg      sync.WaitGroup

	// 前回の周期以降に結果が書き込まれた件数
	resolved atomic.Int64
}

func NewScheduler(rec fileReconciler, files unslicedLister, minInterval, maxInterval time.Duration, logger *zap.Logger) *Scheduler {
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return &Scheduler{
		rec:         rec,
		files:       files,
		minInterval: minInterval,
		maxInterval: maxInterval,
		logger:      logger,
		watched:     map[string]struct{}{},
		inFlight:    map[string]struct{}{},
		wake:        make(chan struct{}, 1),
	}
}

// Startは二回目以降は何もしない。未完了のファイルを読み込んでから始める。
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	pending, err := s.files.ListUnsliced(ctx, seedLimit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.addPending(pending)
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.updateGauge()
	s.ensureLoop()

	s.logger.Info("reconciler started", zap.Int("pending", len(pending)))
	return nil
}

// Stopは実行中の確認が終わるまで待つ。何度呼んでもよい。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("reconciler stopped")
}

func (s *Scheduler) Watch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watched[id] = struct{}{}
	s.updateGauge()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.ensureLoop()
}

func (s *Scheduler) Unwatch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watched, id)
	s.updateGauge()
}

func (s *Scheduler) Watching(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[id]
	return ok
}

// s.mu を持って呼ぶ
func (s *Scheduler) ensureLoop() {
	if !s.started || s.running || len(s.watched) == 0 {
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.loop(s.ctx)
}

// s.mu を持って呼ぶ
func (s *Scheduler) addPending(pending []model.File) int {
	added := 0
	for _, f := range pending {
		if _, ok := s.watched[f.ID]; ok {
			continue
		}
		s.watched[f.ID] = struct{}{}
		added++
	}
	s.backlog = len(pending) >= seedLimit
	return added
}

func (s *Scheduler) updateGauge() {
	metrics.FilesPending.Set(float64(len(s.watched)))
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.minInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-s.wake:
			interval = s.minInterval
			resetTimer(timer, interval)
			continue
		case <-timer.C:
		}

		if !s.cycle(ctx) {
			return
		}

		interval = s.next(interval, s.resolved.Swap(0) > 0)
		timer.Reset(interval)
	}
}

// cycleは監視対象のうち実行中でないものを並行で確認する（完了を待たない）。
// 監視対象が空でDBにも残りがなければfalseを返してループを終える。
func (s *Scheduler) cycle(ctx context.Context) bool {
	start := time.Now()
	s.mu.Lock()
	if len(s.watched) == 0 && s.backlog {
		s.mu.Unlock()
		if err := s.refill(ctx); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("reload pending files failed", zap.Error(err))
			}
			return true
		}
		s.mu.Lock()
	}
	if len(s.watched) == 0 {
		s.running = false
		s.mu.Unlock()
		return false
	}
	ids := make([]string, 0, len(s.watched))
	for id := range s.watched {
		if _, busy := s.inFlight[id]; busy {
			continue
		}
		s.inFlight[id] = struct{}{}
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.wg.Add(1)
		go s.reconcile(ctx, id)
	}
	metrics.ReconcileCycleDuration.Observe(time.Since(start).Seconds())
	return true
}

// 起動時に読みきれなかった分を次のページとして読む。
// 完了したファイルはunslicedでなくなるので同じ条件で取り直せばよい。
func (s *Scheduler) refill(ctx context.Context) error {
	pending, err := s.files.ListUnsliced(ctx, seedLimit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	added := s.addPending(pending)
	s.updateGauge()
	s.mu.Unlock()

	if added > 0 {
		s.resolved.Add(1)
		s.logger.Info("pending files reloaded", zap.Int("count", added))
	}
	return nil
}

func (s *Scheduler) reconcile(ctx context.Context, id string) {
	defer s.wg.Done()

	done, err := s.rec.ReconcileFile(ctx, id)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("reconcile failed", zap.String("file_id", id), zap.Error(err))
	}

	s.mu.Lock()
	delete(s.inFlight, id)
	if done {
		delete(s.watched, id)
		s.updateGauge()
	}
	s.mu.Unlock()

	if done {
		s.resolved.Add(1)
	}
}

// 何も終わらなければ倍、終わったら最小に戻す
func (s *Scheduler) next(cur time.Duration, progressed bool) time.Duration {
	if progressed {
		return s.minInterval
	}
	cur *= 2
	if cur > s.maxInterval {
		return s.maxInterval
	}
	return cur
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
