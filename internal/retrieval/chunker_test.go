package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_EmptyInput(t *testing.T) {
	chunker := NewChunker(512, 50)

	assert.Nil(t, chunker.Split(""))
	assert.Nil(t, chunker.Split("   \n\t  "))
}

func TestChunker_TinyDocument(t *testing.T) {
	chunker := NewChunker(512, 50)

	text := "This is a short document. It fits in one chunk."
	chunks := chunker.Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, text, chunks[0].Content)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, len([]rune(text)), chunks[0].EndChar)
	assert.Equal(t, 10, chunks[0].WordCount)
}

func TestChunker_SentenceAccumulation(t *testing.T) {
	chunker := NewChunker(512, 50)

	// 100个句子，每句10个词
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString(fmt.Sprintf("sentence %d has exactly ten words in it right here. ", i))
	}
	chunks := chunker.Split(sb.String())

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.LessOrEqual(t, chunk.WordCount, 512)
		// 分块在句子边界关闭，末块除外都应接近目标大小
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, chunk.WordCount, 512-10)
		}
	}
}

func TestChunker_OverlapSeeding(t *testing.T) {
	chunker := NewChunker(512, 50)

	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString(fmt.Sprintf("word%d ", i))
		if i%10 == 9 {
			sb.WriteString("end. ")
		}
	}
	chunks := chunker.Split(sb.String())

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		// 重叠播种保证相邻分块共享尾部内容
		assert.LessOrEqual(t, chunks[i].StartChar, chunks[i-1].EndChar,
			"chunk %d start must not pass chunk %d end", i, i-1)
	}
}

func TestChunker_HardSplitLongSegment(t *testing.T) {
	chunker := NewChunker(512, 50)

	// 单个超长片段，没有任何句子边界
	words := make([]string, 1200)
	for i := range words {
		words[i] = fmt.Sprintf("token%d", i)
	}
	chunks := chunker.Split(strings.Join(words, " "))

	require.Len(t, chunks, 3)
	assert.Equal(t, 512, chunks[0].WordCount)
	assert.Equal(t, 512, chunks[1].WordCount)
	assert.Equal(t, 276, chunks[2].WordCount)

	// 内容没有丢失：末块覆盖到文本结尾
	assert.True(t, strings.HasSuffix(chunks[2].Content, "token1199"))
}

func TestChunker_ParagraphBoundary(t *testing.T) {
	chunker := NewChunker(20, 5)

	text := "First paragraph with some words here.\n\nSecond paragraph continues the document with more words."
	chunks := chunker.Split(text)

	require.NotEmpty(t, chunks)
	total := 0
	for _, chunk := range chunks {
		total += chunk.WordCount
		assert.LessOrEqual(t, chunk.WordCount, 20)
	}
	assert.GreaterOrEqual(t, total, 14)
}

func TestChunker_DefaultsOnInvalidConfig(t *testing.T) {
	chunker := NewChunker(0, -1)
	assert.Equal(t, 512, chunker.targetSize)
	assert.Equal(t, 0, chunker.overlap)

	chunker = NewChunker(100, 200)
	assert.Equal(t, 25, chunker.overlap)
}
