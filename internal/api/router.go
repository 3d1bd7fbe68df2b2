package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/LJTian/NewsPulse/internal/cache"
	"github.com/LJTian/NewsPulse/internal/pipeline"
	"github.com/LJTian/NewsPulse/internal/processor"
	"github.com/gin-gonic/gin"
)

const (
	listCacheTTL     = 5 * time.Minute
	defaultListLimit = 20
	maxListLimit     = 1000
	defaultTrendDays = 7
)

// Pipeline 是 API 触发采集所需的最小接口
type Pipeline interface {
	Run(ctx context.Context, source, query string) (*pipeline.Result, error)
	Collection(source string) (string, bool)
}

// ArticleReader 是只读查询接口
type ArticleReader interface {
	ListRecent(ctx context.Context, collection string, limit int) ([]processor.Article, error)
	FindSince(ctx context.Context, collection string, since time.Time) ([]processor.Article, error)
}

type Server struct {
	pipeline Pipeline
	store    ArticleReader
	cache    cache.Cache
	runTTL   time.Duration
	now      func() time.Time
}

func NewServer(p Pipeline, store ArticleReader, c cache.Cache, runTTL time.Duration) *Server {
	return &Server{pipeline: p, store: store, cache: c, runTTL: runTTL, now: time.Now}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/trending", s.trending)
	}

	r.GET("/:source", s.runSource)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func ok(c *gin.Context, data any, extra gin.H) {
	body := gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// runSource 触发一次采集或返回缓存的结果；只返回本轮新增/更新的文章
func (s *Server) runSource(c *gin.Context) {
	source := c.Param("source")
	if _, known := s.pipeline.Collection(source); !known {
		fail(c, http.StatusNotFound, "not_found", "unknown source "+source)
		return
	}
	query := c.Query("q")
	ctx := c.Request.Context()
	key := cache.Key("run", source, query)

	var res pipeline.Result
	if bs, err := s.cache.Get(ctx, key); err == nil {
		if err := json.Unmarshal(bs, &res); err == nil {
			ok(c, res.Articles, gin.H{"meta": runMeta(&res, true)})
			return
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Printf("api: cache get %s: %v", key, err)
	}

	out, err := s.pipeline.Run(ctx, source, query)
	if err != nil {
		log.Printf("api: run %s error: %v", source, err)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			fail(c, http.StatusConflict, "in_progress", "a run for "+source+" is already in progress")
			return
		}
		fail(c, http.StatusInternalServerError, "internal_error", "error fetching "+source+" articles")
		return
	}

	if bs, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, bs, s.runTTL); err != nil {
			log.Printf("api: cache set %s: %v", key, err)
		}
	}
	ok(c, out.Articles, gin.H{"meta": runMeta(out, false)})
}

func runMeta(res *pipeline.Result, cached bool) gin.H {
	return gin.H{
		"source":    res.Source,
		"fetched":   res.Fetched,
		"inserted":  res.Inserted,
		"updated":   res.Updated,
		"unchanged": res.Unchanged,
		"cached":    cached,
	}
}

func parseLimit(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func (s *Server) collection(c *gin.Context) (string, string, bool) {
	source := c.Query("source")
	collection, known := s.pipeline.Collection(source)
	if !known {
		fail(c, http.StatusBadRequest, "bad_request", "unknown or missing source")
		return "", "", false
	}
	return source, collection, true
}

// cached 先查缓存，未命中时调用 load 并回写
func (s *Server) cached(ctx context.Context, key string, out any, load func() (any, error)) error {
	if bs, err := s.cache.Get(ctx, key); err == nil {
		if err := json.Unmarshal(bs, out); err == nil {
			return nil
		}
	}
	v, err := load()
	if err != nil {
		return err
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = s.cache.Set(ctx, key, bs, listCacheTTL)
	return json.Unmarshal(bs, out)
}

func (s *Server) listArticles(c *gin.Context) {
	source, collection, known := s.collection(c)
	if !known {
		return
	}
	limit := parseLimit(c, "limit", defaultListLimit, maxListLimit)
	ctx := c.Request.Context()

	var items []processor.Article
	key := cache.Key("articles", source, strconv.Itoa(limit))
	err := s.cached(ctx, key, &items, func() (any, error) {
		return s.store.ListRecent(ctx, collection, limit)
	})
	if err != nil {
		log.Printf("api: list %s error: %v", source, err)
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, items, nil)
}

func (s *Server) trending(c *gin.Context) {
	source, collection, known := s.collection(c)
	if !known {
		return
	}
	days := parseLimit(c, "days", defaultTrendDays, 365)
	limit := parseLimit(c, "limit", defaultListLimit, maxListLimit)
	ctx := c.Request.Context()

	var items []processor.KeywordCount
	key := cache.Key("trending", source, strconv.Itoa(days), strconv.Itoa(limit))
	err := s.cached(ctx, key, &items, func() (any, error) {
		since := s.now().AddDate(0, 0, -days)
		articles, err := s.store.FindSince(ctx, collection, since)
		if err != nil {
			return nil, err
		}
		return processor.TopKeywords(articles, limit), nil
	})
	if err != nil {
		log.Printf("api: trending %s error: %v", source, err)
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, items, nil)
}

// BasicAuthMiddleware 为整个站点增加一个简单的 Basic Auth 访问密码；/health 不做认证，便于健康检查
func BasicAuthMiddleware(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
