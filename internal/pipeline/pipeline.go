package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/LJTian/NewsPulse/internal/collector"
	"github.com/LJTian/NewsPulse/internal/processor"
)

// ArticleStore 是编排器依赖的存储门面
type ArticleStore interface {
	FindAll(ctx context.Context, collection string) ([]processor.Article, error)
	UpsertMany(ctx context.Context, collection string, articles []processor.Article) error
}

// Source 把一个 Adapter 绑定到它的存储集合与默认查询
type Source struct {
	Name       string
	Collection string
	Query      string
	Adapter    collector.Adapter
}

// Result 是一次运行的统计；Articles 只包含本轮新增和更新的文章
type Result struct {
	Source    string              `json:"source"`
	Query     string              `json:"query"`
	Fetched   int                 `json:"fetched"`
	Inserted  int                 `json:"inserted"`
	Updated   int                 `json:"updated"`
	Unchanged int                 `json:"unchanged"`
	Articles  []processor.Article `json:"articles"`
}

type Orchestrator struct {
	store     ArticleStore
	processor *processor.Processor
	sources   map[string]Source

	mu      sync.Mutex
	running map[string]struct{}
}

func New(store ArticleStore, p *processor.Processor, sources ...Source) (*Orchestrator, error) {
	o := &Orchestrator{
		store:     store,
		processor: p,
		sources:   make(map[string]Source, len(sources)),
		running:   make(map[string]struct{}),
	}
	for _, s := range sources {
		if s.Name == "" || s.Adapter == nil {
			return nil, fmt.Errorf("pipeline: source %q needs a name and an adapter", s.Name)
		}
		if _, dup := o.sources[s.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate source %q", s.Name)
		}
		if s.Collection == "" {
			s.Collection = s.Name
		}
		o.sources[s.Name] = s
	}
	return o, nil
}

// Sources 返回已注册的数据源名（字典序）
func (o *Orchestrator) Sources() []string {
	names := make([]string, 0, len(o.sources))
	for name := range o.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) Collection(name string) (string, bool) {
	s, ok := o.sources[name]
	return s.Collection, ok
}

// acquire 同一数据源同时只允许一个运行
func (o *Orchestrator) acquire(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.running[name]; busy {
		return false
	}
	o.running[name] = struct{}{}
	return true
}

func (o *Orchestrator) release(name string) {
	o.mu.Lock()
	delete(o.running, name)
	o.mu.Unlock()
}

// Run 执行一次完整流程：读已存数据 -> 拉取 -> 打分 -> 去重分区 -> 一次批量 upsert。
// query 为空时使用数据源的默认查询。
func (o *Orchestrator) Run(ctx context.Context, name, query string) (*Result, error) {
	src, ok := o.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if !o.acquire(name) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, name)
	}
	defer o.release(name)

	if query == "" {
		query = src.Query
	}

	existing, err := o.store.FindAll(ctx, src.Collection)
	if err != nil {
		return nil, &PartialFailure{Source: name, Stage: StageLoad, Err: err}
	}
	stored := make(map[string]processor.Article, len(existing))
	for _, a := range existing {
		stored[a.URL] = a
	}

	drafts, err := src.Adapter.FetchAll(ctx, query)
	if err != nil {
		return nil, &PartialFailure{Source: name, Stage: StageFetch, Err: err}
	}

	articles := o.processor.Process(drafts)
	if len(drafts) > 0 && len(articles) == 0 {
		return nil, &PartialFailure{Source: name, Stage: StageEnrich, Err: errors.New("no draft carried a usable url")}
	}

	res := &Result{Source: name, Query: query, Fetched: len(drafts)}
	changed := make([]processor.Article, 0, len(articles))
	for _, a := range articles {
		old, seen := stored[a.URL]
		switch {
		case !seen:
			res.Inserted++
		case old.SameContent(a):
			res.Unchanged++
			continue
		default:
			res.Updated++
		}
		changed = append(changed, a)
	}

	if err := ctx.Err(); err != nil {
		return nil, &PartialFailure{Source: name, Stage: StageUpsert, Err: err}
	}
	if err := o.store.UpsertMany(ctx, src.Collection, changed); err != nil {
		return nil, &PartialFailure{Source: name, Stage: StageUpsert, Err: err}
	}
	res.Articles = changed

	log.Printf("%s done, fetched=%d inserted=%d updated=%d unchanged=%d",
		name, res.Fetched, res.Inserted, res.Updated, res.Unchanged)
	return res, nil
}

// RunAll 并发运行所有数据源；单个数据源失败不会回滚其他数据源已提交的结果。
// 返回成功的结果（按数据源名排序）以及所有失败合并后的错误。
func (o *Orchestrator) RunAll(ctx context.Context) ([]*Result, error) {
	names := o.Sources()

	var (
		wg      sync.WaitGroup
		results = make([]*Result, len(names))
		errs    = make([]error, len(names))
	)
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Run(ctx, name, "")
			if err != nil {
				log.Printf("run %s error: %v", name, err)
				errs[i] = err
				return
			}
			results[i] = res
		}()
	}
	wg.Wait()

	out := make([]*Result, 0, len(names))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, errors.Join(errs...)
}
