package knowledgebase

import (
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"discord-rag-backend/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRegistryTest(t *testing.T) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接，保证所有会话看到同一个内存库
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, dao.Migrate(db))
	dao.DB = db

	config.Cfg.KnowledgeBase.UploadDir = t.TempDir()
}

func TestRegisterUploadStartsProcessing(t *testing.T) {
	setupRegistryTest(t)

	result, err := RegisterUpload("guide.md", []byte("# Setup\n\nInstall the bot."))
	require.NoError(t, err)

	assert.True(t, result.Started)
	assert.False(t, result.NewVersion)
	assert.Equal(t, model.StatusProcessing, result.Source.Status)
	assert.Equal(t, model.FileTypeMarkdown, result.Source.FileType)
	assert.FileExists(t, result.Source.FilePath)
}

func TestRegisterUploadDeduplicatesByContent(t *testing.T) {
	setupRegistryTest(t)

	content := []byte("# Setup\n\nInstall the bot.")
	first, err := RegisterUpload("guide.md", content)
	require.NoError(t, err)
	require.NoError(t, CompleteProcessing(first.Source.ID, 3, 42, 120, 50))

	// 同样的内容换个文件名再传，不触发处理
	second, err := RegisterUpload("copy-of-guide.md", content)
	require.NoError(t, err)

	assert.False(t, second.Started)
	assert.Equal(t, first.Source.ID, second.Source.ID)

	processed, err := IsDocumentProcessed(second.Source.ContentHash)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRegisterUploadNewVersionOnContentChange(t *testing.T) {
	setupRegistryTest(t)

	first, err := RegisterUpload("guide.md", []byte("version one"))
	require.NoError(t, err)
	require.NoError(t, CompleteProcessing(first.Source.ID, 1, 10, 11, 5))

	second, err := RegisterUpload("guide.md", []byte("version two"))
	require.NoError(t, err)

	assert.True(t, second.Started)
	assert.True(t, second.NewVersion)
	assert.Equal(t, 2, second.Source.Version)
	require.NotNil(t, second.Source.PreviousVersionID)
	assert.Equal(t, first.Source.ID, *second.Source.PreviousVersionID)

	prev, err := dao.GetDocumentByID(first.Source.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOutdated, prev.Status)
}

func TestRegisterUploadRejectsUnsupportedType(t *testing.T) {
	setupRegistryTest(t)

	_, err := RegisterUpload("malware.exe", []byte("nope"))

	var validationErr *dao.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "file_type", validationErr.Field)
}

func TestDeactivateRemovesChunks(t *testing.T) {
	setupRegistryTest(t)

	result, err := RegisterUpload("guide.md", []byte("to be removed"))
	require.NoError(t, err)
	require.NoError(t, CompleteProcessing(result.Source.ID, 2, 20, 13, 5))
	require.NoError(t, dao.SaveDocumentChunks([]model.DocumentChunk{
		{SourceID: result.Source.ID, ChunkIndex: 0, Content: "to be"},
		{SourceID: result.Source.ID, ChunkIndex: 1, Content: "removed"},
	}))

	deleted, err := Deactivate(result.Source.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = GetDocumentByHash(result.Source.ContentHash)
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestFileTypeFromName(t *testing.T) {
	assert.Equal(t, model.FileTypePDF, FileTypeFromName("manual.PDF"))
	assert.Equal(t, model.FileTypeMarkdown, FileTypeFromName("notes.md"))
	assert.Equal(t, model.FileTypeText, FileTypeFromName("log.txt"))
	assert.False(t, model.ValidFileType(FileTypeFromName("archive.zip")))
}
