package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LJTian/NewsPulse/internal/pipeline"
	"github.com/robfig/cron/v3"
)

const (
	// 延迟执行首轮采集，避免与启动后的首批请求争抢上游配额
	startupDelay = 15 * time.Second
	jobTimeout   = 10 * time.Minute
)

// Runner 是调度器触发的对象，通常为 *pipeline.Orchestrator
type Runner interface {
	Run(ctx context.Context, source, query string) (*pipeline.Result, error)
}

// Job 按数据源配置独立的采集周期
type Job struct {
	Source   string
	CronSpec string
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	jobs   []Job
	delay  time.Duration
	timer  *time.Timer

	// startup 跟踪启动后延迟执行的首轮采集
	startup sync.WaitGroup
}

func New(runner Runner, jobs ...Job) (*Scheduler, error) {
	c := cron.New(cron.WithLogger(cron.PrintfLogger(log.Default())))

	s := &Scheduler{
		cron:   c,
		runner: runner,
		jobs:   jobs,
		delay:  startupDelay,
	}

	for _, j := range jobs {
		source := j.Source
		if _, err := c.AddFunc(j.CronSpec, func() { s.runSource(source) }); err != nil {
			return nil, fmt.Errorf("scheduler: add %s (%q): %w", j.Source, j.CronSpec, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.startup.Add(1)
	s.timer = time.AfterFunc(s.delay, func() {
		defer s.startup.Done()
		s.RunOnce()
	})
}

// Stop 停止调度并等待正在运行的任务结束，包括已触发的首轮采集
func (s *Scheduler) Stop() {
	if s.timer != nil && s.timer.Stop() {
		// 首轮尚未触发，回调不会再执行
		s.startup.Done()
	}
	<-s.cron.Stop().Done()
	s.startup.Wait()
}

// RunOnce 对外暴露的单次执行入口，所有数据源并发跑一轮
func (s *Scheduler) RunOnce() {
	log.Println("start collect job...")

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runSource(j.Source)
		}()
	}
	wg.Wait()
	log.Println("collect job done (all sources)")
}

// runSource 同一数据源已在运行时直接跳过，不排队
func (s *Scheduler) runSource(source string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	_, err := s.runner.Run(ctx, source, "")
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrRunInProgress):
		log.Printf("scheduler: skip %s, run already in progress", source)
	default:
		log.Printf("scheduler: run %s error: %v", source, err)
	}
}
