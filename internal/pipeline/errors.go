package pipeline

import (
	"errors"
	"fmt"
)

// 一次运行的各个阶段，用于定位失败位置
const (
	StageLoad   = "load"
	StageFetch  = "fetch"
	StageEnrich = "enrich"
	StageUpsert = "upsert"
)

var (
	ErrRunInProgress = errors.New("pipeline: run already in progress")
	ErrUnknownSource = errors.New("pipeline: unknown source")
)

// PartialFailure 表示某个数据源在某个阶段失败，其他数据源已提交的数据不受影响
type PartialFailure struct {
	Source string
	Stage  string
	Err    error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("pipeline: %s failed at %s: %v", e.Source, e.Stage, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }
