package processor

import (
	"math"
	"strings"
	"sync"

	"github.com/jonreiter/govader"
)

// compoundScale 把 VADER compound 分（-1..1）映射到整数分 -10..10
const compoundScale = 10

// analyzer 构造后只读，可被多个数据源的运行并发使用
var analyzer = sync.OnceValue(govader.NewSentimentIntensityAnalyzer)

// AnalyzeSentiment 使用 VADER 词典打分（含否定、程度词、感叹号等规则），空文本为 0
func AnalyzeSentiment(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	s := analyzer().PolarityScores(text)
	return int(math.Round(s.Compound * compoundScale))
}
