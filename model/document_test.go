package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusFailed, StatusProcessing, true},
		{StatusCompleted, StatusOutdated, true},

		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusOutdated, StatusProcessing, false},
		{StatusOutdated, StatusCompleted, false},
		{StatusFailed, StatusCompleted, false},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusOutdated, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransition(c.to),
			"%s -> %s", c.from, c.to)
	}
}

func TestValidFileType(t *testing.T) {
	assert.True(t, ValidFileType(FileTypePDF))
	assert.True(t, ValidFileType(FileTypeMarkdown))
	assert.True(t, ValidFileType(FileTypeText))
	assert.False(t, ValidFileType(FileType("docx")))
	assert.False(t, ValidFileType(FileType("")))
}
