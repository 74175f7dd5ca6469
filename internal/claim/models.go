package claim

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the processing state of a claimed directory.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ClaimRecord tracks ownership and outcome for one watched directory.
// A row exists from the moment a poller wins the claim and is never
// deleted; the table doubles as the permanent processed set.
type ClaimRecord struct {
	Dirname     string     `gorm:"column:dirname;primaryKey;size:255" json:"dirname"`
	StartedAt   time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
	Status      Status     `gorm:"column:status;size:50;not null;default:processing;index:idx_directory_processing_state_status" json:"status"`
	RunID       string     `gorm:"column:run_id;size:255" json:"run_id"`
}

// TableName maps ClaimRecord to its table
func (ClaimRecord) TableName() string {
	return "directory_processing_state"
}

// FileRecord describes one uploaded file inside a directory.
type FileRecord struct {
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	FileSize    int64  `json:"file_size"`
}

// FileRecords is an ordered collection of FileRecord stored as JSONB.
type FileRecords []FileRecord

// Value implements driver.Valuer
func (f FileRecords) Value() (driver.Value, error) {
	if f == nil {
		f = FileRecords{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file records: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (f *FileRecords) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan file records: unexpected type %T", value)
	}

	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("failed to unmarshal file records: %w", err)
	}
	return nil
}

// DirectoryMetadata is the append-only record written once per
// successfully ingested directory.
type DirectoryMetadata struct {
	ID         int64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Dirname    string      `gorm:"column:dirname;size:255" json:"dirname"`
	FileCount  int         `gorm:"column:file_count" json:"file_count"`
	TotalSize  int64       `gorm:"column:total_size" json:"total_size"`
	Files      FileRecords `gorm:"column:files_json;type:jsonb" json:"files"`
	UploadedAt time.Time   `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
}

// TableName maps DirectoryMetadata to its table
func (DirectoryMetadata) TableName() string {
	return "directory_metadata"
}
