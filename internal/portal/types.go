package portal

import "time"

// FileRecord is an uploaded spreadsheet as listed by the backend.
// StorageRef is an opaque file locator; ReportURL is empty when no report
// has been generated.
type FileRecord struct {
	ID         int64     `json:"id"`
	StorageRef string    `json:"file"`
	UploadedAt time.Time `json:"uploaded_at"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	ReportURL  string    `json:"report_url,omitempty"`
}

// Report is the normalized analytical breakdown of one file. The maps are
// never nil.
type Report struct {
	QuotaCounts          map[string]int64 `json:"quota_counts"`
	SpecializationCounts map[string]int64 `json:"specialization_counts"`
	NotesCounts          map[string]int64 `json:"notes_counts"`
	Metadata             *ReportMetadata  `json:"metadata,omitempty"`
}

// ReportMetadata describes how the backend produced a report.
type ReportMetadata struct {
	TotalRowsProcessed        int64   `json:"total_rows_processed"`
	RowsWithQuotas            int64   `json:"rows_with_quotas"`
	RowsWithSpecializations   int64   `json:"rows_with_specializations"`
	ProcessingDurationSeconds float64 `json:"processing_duration_seconds"`
}

// SummaryOptions scopes FetchSummary. Nil fields are omitted from the
// query so the backend applies its own defaults.
type SummaryOptions struct {
	Days     *int
	UserOnly *bool
}

// SummaryData is aggregate statistics over a time window.
type SummaryData struct {
	Summary  Summary         `json:"summary"`
	Metadata SummaryMetadata `json:"metadata"`
}

// Summary holds the aggregate counts. Quota counts may contain a nested
// mapping (the notes category), so they are kept as raw values.
type Summary struct {
	TotalFiles                int64            `json:"total_files"`
	TotalQuotaCounts          map[string]any   `json:"total_quota_counts"`
	TotalSpecializationCounts map[string]int64 `json:"total_specialization_counts"`
	ProcessingStats           ProcessingStats  `json:"processing_stats"`
	FileUploadTimeline        []TimelineEntry  `json:"file_upload_timeline"`
	MostActiveDays            []ActiveDay      `json:"most_active_days"`
}

// ProcessingStats aggregates backend processing time.
type ProcessingStats struct {
	AverageProcessingTimeSeconds float64 `json:"average_processing_time_seconds"`
	TotalProcessingTimeSeconds   float64 `json:"total_processing_time_seconds"`
	FilesWithProcessingData      int64   `json:"files_with_processing_data"`
}

// TimelineEntry is one upload in the summary window.
type TimelineEntry struct {
	FileID              int64     `json:"file_id"`
	FileName            string    `json:"file_name"`
	UploadedAt          time.Time `json:"uploaded_at"`
	QuotaCount          int64     `json:"quota_count"`
	SpecializationCount int64     `json:"specialization_count"`
}

// ActiveDay is an upload count for one calendar date (YYYY-MM-DD).
type ActiveDay struct {
	Date    string `json:"date"`
	Uploads int64  `json:"uploads"`
}

// SummaryMetadata describes the window a summary covers.
type SummaryMetadata struct {
	GeneratedAt   time.Time `json:"generated_at"`
	TimeRangeDays int       `json:"time_range_days"`
	FilesIncluded int64     `json:"files_included"`
	DateRange     DateRange `json:"date_range"`
}

// DateRange bounds a summary window.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
