package processor

import (
	"bytes"
	"context"
	"discord-rag-backend/model"
	"fmt"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

type PDFETLProcessor struct {
	textSplitter textsplitter.TextSplitter
}

var _ ETLProcessor = &PDFETLProcessor{}

func NewPDFETLProcessor() *PDFETLProcessor {
	textSplitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}),
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &PDFETLProcessor{
		textSplitter: textSplitter,
	}
}

func (p *PDFETLProcessor) CanProcess(fileType model.FileType) bool {
	return fileType == model.FileTypePDF
}

func (p *PDFETLProcessor) Split(ctx context.Context, data []byte) ([]schema.Document, error) {
	reader := bytes.NewReader(data)
	loader := documentloaders.NewPDF(reader, int64(len(data)))

	docs, err := loader.LoadAndSplit(ctx, p.textSplitter)
	if err != nil {
		return nil, fmt.Errorf("error loading and spliting pdf: %v", err)
	}

	return docs, nil
}
