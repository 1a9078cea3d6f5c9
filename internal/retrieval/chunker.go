package retrieval

import (
	"strings"
	"unicode"
)

// ChunkDraft 分块结果，尚未生成向量
// StartChar/EndChar 为原文中的 rune 偏移，
// 相邻分块因重叠播种满足 next.StartChar <= prev.EndChar。
type ChunkDraft struct {
	Content    string
	ChunkIndex int
	StartChar  int
	EndChar    int
	WordCount  int
}

// Chunker 文本分块器
// 先按段落/句子边界切分，再将片段累积到目标大小，
// 关闭一个分块时用其尾部词播种下一个分块以保持句子连续性。
type Chunker struct {
	targetSize int
	overlap    int
}

// NewChunker 创建分块器
func NewChunker(targetSize, overlap int) *Chunker {
	if targetSize <= 0 {
		targetSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize / 4
	}
	return &Chunker{
		targetSize: targetSize,
		overlap:    overlap,
	}
}

// wordSpan 一个词在原文中的 rune 偏移范围
type wordSpan struct {
	start int
	end   int
}

// Split 将文本切分为有序分块
// 空白文本返回零个分块；小于目标大小的文本返回恰好一个分块。
func (c *Chunker) Split(text string) []ChunkDraft {
	runes := []rune(text)
	words, segStart := tokenize(runes)
	if len(words) == 0 {
		return nil
	}

	var chunks []ChunkDraft
	a := 0
	for a < len(words) {
		b := c.fillChunk(words, segStart, a)

		first, last := words[a], words[b-1]
		chunks = append(chunks, ChunkDraft{
			Content:    strings.TrimSpace(string(runes[first.start:last.end])),
			ChunkIndex: len(chunks),
			StartChar:  first.start,
			EndChar:    last.end,
			WordCount:  b - a,
		})

		if b >= len(words) {
			break
		}

		// 重叠播种：下一分块从上一分块的尾部词开始
		next := b - c.overlap
		if next <= a {
			next = b
		}
		a = next
	}

	return chunks
}

// fillChunk 从词下标 a 开始累积片段，返回分块的结束下标（开区间）
func (c *Chunker) fillChunk(words []wordSpan, segStart []bool, a int) int {
	count := 0
	b := a
	for b < len(words) {
		segEnd := b + 1
		for segEnd < len(words) && !segStart[segEnd] {
			segEnd++
		}
		segLen := segEnd - b

		if count > 0 && count+segLen > c.targetSize {
			break
		}
		if count == 0 && segLen > c.targetSize {
			// 单个片段超过目标大小时在最近的词边界硬切
			return a + c.targetSize
		}

		count += segLen
		b = segEnd

		if count >= c.targetSize {
			break
		}
	}
	return b
}

// tokenize 把文本切成带偏移的词序列，并标记句子/段落起点
func tokenize(runes []rune) ([]wordSpan, []bool) {
	var words []wordSpan
	var segStart []bool

	i := 0
	newSegment := true
	for i < len(runes) {
		if unicode.IsSpace(runes[i]) {
			// 空行视作段落边界
			if runes[i] == '\n' {
				nl := 1
				for j := i + 1; j < len(runes) && unicode.IsSpace(runes[j]); j++ {
					if runes[j] == '\n' {
						nl++
					}
				}
				if nl >= 2 {
					newSegment = true
				}
			}
			i++
			continue
		}

		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		words = append(words, wordSpan{start: start, end: i})
		segStart = append(segStart, newSegment)

		newSegment = endsSentence(runes[start:i])
	}

	return words, segStart
}

// endsSentence 词尾是否为句子终止符
func endsSentence(word []rune) bool {
	for i := len(word) - 1; i >= 0; i-- {
		switch word[i] {
		case '.', '!', '?', '。', '！', '？':
			return true
		case '"', '\'', ')', ']', '”', '’', '）':
			// 跳过收尾引号和括号
			continue
		default:
			return false
		}
	}
	return false
}
