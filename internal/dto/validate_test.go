package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcademicYearValidation(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Struct(CreateCycleRequest{Year: "2025/2026"}))
	assert.Error(t, v.Struct(CreateCycleRequest{Year: "2025-2026"}))
	assert.Error(t, v.Struct(CreateCycleRequest{Year: "25/26"}))

	assert.NoError(t, v.Struct(ExportRequest{Format: ExportFormatCSV}))
	assert.Error(t, v.Struct(ExportRequest{Format: "docx"}))
}

func TestBulkDisburseValidation(t *testing.T) {
	v := NewValidator()

	assert.Error(t, v.Struct(BulkDisburseRequest{}))
	assert.Error(t, v.Struct(BulkDisburseRequest{ApplicationIDs: []string{""}}))
	assert.NoError(t, v.Struct(BulkDisburseRequest{ApplicationIDs: []string{"a", "b"}}))
}
