package processor

import (
	"sort"
	"strings"
)

var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "in": {}, "and": {}, "of": {}, "to": {}, "a": {},
}

// isWordRune 对应 [a-z0-9_]，其余字符（包括非 ASCII）都是分隔符
func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_'
}

// ExtractKeywords 小写后按 [^a-z0-9_] 分词，去掉长度不超过 3 的词和停用词；保留出现顺序，不去重
func ExtractKeywords(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) <= 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// KeywordCount 是趋势统计的一行
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// TopKeywords 统计一批文章的关键词出现次数，按次数倒序、同次数按字母序
func TopKeywords(articles []Article, n int) []KeywordCount {
	counts := make(map[string]int)
	for _, a := range articles {
		for _, k := range a.Keywords {
			counts[k]++
		}
	}

	out := make([]KeywordCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, KeywordCount{Keyword: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
