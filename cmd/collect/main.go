package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/LJTian/NewsPulse/internal/config"
	"github.com/LJTian/NewsPulse/internal/pipeline"
	"github.com/LJTian/NewsPulse/internal/processor"
	"github.com/LJTian/NewsPulse/internal/storage"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发采集
func main() {
	memory := flag.Bool("memory", false, "use in-memory store instead of PostgreSQL")
	source := flag.String("source", "", "run a single source (default: all)")
	query := flag.String("q", "", "override the source's default query, only with -source")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall timeout")
	flag.Parse()

	cfg := config.Load()

	var store pipeline.ArticleStore
	if *memory {
		store = storage.NewMemoryStore()
	} else {
		pg, err := storage.NewStore(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("init store failed: %v", err)
		}
		defer pg.Close()
		store = pg
	}

	sources, _ := pipeline.SourcesFromConfig(cfg)
	orch, err := pipeline.New(store, processor.NewProcessor(), sources...)
	if err != nil {
		log.Fatalf("init pipeline failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var results []*pipeline.Result
	if *source != "" {
		res, err := orch.Run(ctx, *source, *query)
		if res != nil {
			results = append(results, res)
		}
		report(results)
		if err != nil {
			log.Printf("collect %s failed: %v", *source, err)
			os.Exit(1)
		}
		return
	}

	results, err = orch.RunAll(ctx)
	report(results)
	if err != nil {
		log.Printf("collect finished with errors: %v", err)
		os.Exit(1)
	}
}

func report(results []*pipeline.Result) {
	for _, r := range results {
		log.Printf("%s: fetched=%d inserted=%d updated=%d unchanged=%d",
			r.Source, r.Fetched, r.Inserted, r.Updated, r.Unchanged)
	}
}
