package processor

import (
	"bytes"
	"context"
	"discord-rag-backend/model"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// MarkdownETLProcessor Markdown文件切分器，兼容Text文件
type MarkdownETLProcessor struct {
	textSplitter textsplitter.TextSplitter
}

var _ ETLProcessor = &MarkdownETLProcessor{}

func NewMarkdownETLProcessor() *MarkdownETLProcessor {
	separators := []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}
	textSplitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithHeadingHierarchy(true), // 保留父级标题信息
		textsplitter.WithSecondSplitter(textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
		)),
	)

	return &MarkdownETLProcessor{
		textSplitter: textSplitter,
	}
}

func (p *MarkdownETLProcessor) CanProcess(fileType model.FileType) bool {
	return fileType == model.FileTypeMarkdown || fileType == model.FileTypeText
}

func (p *MarkdownETLProcessor) Split(ctx context.Context, data []byte) ([]schema.Document, error) {
	reader := bytes.NewReader(data)
	loader := documentloaders.NewText(reader)

	docs, err := loader.LoadAndSplit(ctx, p.textSplitter)
	if err != nil {
		return nil, fmt.Errorf("error loading and spliting markdown: %v", err)
	}

	// 过滤只有孤立标题的chunk
	return filterStandaloneHeaders(docs), nil
}

// 匹配形如 "# xxx ## xxx" 的chunk
var headerOnlyRegex = regexp.MustCompile(`^\s*(?:#{1,6}\s+.+\n?)+\s*$`)

func filterStandaloneHeaders(docs []schema.Document) []schema.Document {
	var filtered []schema.Document
	for _, doc := range docs {
		content := strings.TrimSpace(doc.PageContent)
		if content == "" {
			continue
		}
		if headerOnlyRegex.MatchString(content) {
			continue
		}
		filtered = append(filtered, doc)
	}
	return filtered
}
