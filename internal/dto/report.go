package dto

// ExportFormat selects the applications export renderer.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatPDF  ExportFormat = "pdf"
)

// ExportRequest captures GET /reports/applications/export parameters.
type ExportRequest struct {
	Format       ExportFormat `json:"format" validate:"required,oneof=csv xlsx pdf"`
	AcademicYear string       `json:"academicYear" validate:"omitempty,academic_year"`
}

// ExportResponse points to the stored export file.
type ExportResponse struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	Rows      int    `json:"rows"`
	ExpiresAt string `json:"expiresAt"`
}
