package main

import (
	"log"

	"github.com/LJTian/NewsPulse/internal/api"
	"github.com/LJTian/NewsPulse/internal/cache"
	"github.com/LJTian/NewsPulse/internal/config"
	"github.com/LJTian/NewsPulse/internal/pipeline"
	"github.com/LJTian/NewsPulse/internal/processor"
	"github.com/LJTian/NewsPulse/internal/scheduler"
	"github.com/LJTian/NewsPulse/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	defer store.Close()

	// 配置了 Redis 时多实例共享缓存，否则使用进程内缓存
	var c cache.Cache = cache.NewMemoryCache(cfg.CacheTTL)
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			log.Printf("warn: redis unavailable, fallback to memory cache: %v", err)
		} else {
			defer rc.Close()
			c = rc
		}
	}

	sources, crons := pipeline.SourcesFromConfig(cfg)
	orch, err := pipeline.New(store, processor.NewProcessor(), sources...)
	if err != nil {
		log.Fatalf("init pipeline failed: %v", err)
	}

	// 按数据源更新频率配置独立的采集周期
	jobs := make([]scheduler.Job, 0, len(sources))
	for _, name := range orch.Sources() {
		jobs = append(jobs, scheduler.Job{Source: name, CronSpec: crons[name]})
	}
	s, err := scheduler.New(orch, jobs...)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	api.NewServer(orch, store, c, cfg.CacheTTL).RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s with sources %v ...", addr, orch.Sources())
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
