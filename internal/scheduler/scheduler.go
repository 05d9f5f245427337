package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/config"
	"github.com/wavesbot/meeting-scribe/internal/logger"
	"github.com/wavesbot/meeting-scribe/internal/meeting"

	"github.com/robfig/cron/v3"
)

type meetingTracker interface {
	CheckUpcomingMeetings(ctx context.Context) int
	CheckUpcomingEnrollments(ctx context.Context, window time.Duration)
}

type Scheduler struct {
	cron    *cron.Cron
	tracker meetingTracker
	config  *config.Config
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running sync.Mutex
	wg      sync.WaitGroup // 启动时的立即轮询
}

// locUTC UTC 标准时间（UTC）
var locUTC = time.UTC

func NewScheduler(tracker *meeting.Tracker, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(locUTC)),
		tracker: tracker,
		config:  cfg,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	// 注册会议轮询任务
	_, err := s.cron.AddFunc(s.config.Scheduler.PollCron, s.poll)
	if err != nil {
		return fmt.Errorf("注册会议轮询任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，会议轮询任务: %s", s.config.Scheduler.PollCron)

	// 启动时立即同步一次
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.poll()
	}()

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	logger.Infof("[Scheduler] 调度器已停止")
}

// poll 同步即将开始的会议，再检查窗口内会议的声纹注册情况
// 上一轮未结束时跳过本轮
func (s *Scheduler) poll() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	if !s.running.TryLock() {
		logger.Debugf("[Scheduler] 上一轮会议轮询尚未结束，跳过")
		return
	}
	defer s.running.Unlock()

	updated := s.tracker.CheckUpcomingMeetings(ctx)
	logger.Debugf("[Scheduler] 会议同步完成，更新 %d 个", updated)

	window := time.Duration(s.config.Enrollment.WindowHours) * time.Hour
	s.tracker.CheckUpcomingEnrollments(ctx, window)
}
