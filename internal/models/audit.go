package models

import "time"

// AuditAction constants represent timetable writes that are logged.
const (
	AuditActionEntryCreate  = "ENTRY_CREATE"
	AuditActionEntryReplace = "ENTRY_REPLACE"
	AuditActionEntryDelete  = "ENTRY_DELETE"
	AuditActionBulkImport   = "ENTRY_BULK_IMPORT"
	AuditActionCatalogSave  = "CATALOG_SAVE"
	AuditActionCatalogDrop  = "CATALOG_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   string    `db:"school_id" json:"tenantId"`
	UserID     string    `db:"user_id" json:"userId"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID string    `db:"resource_id" json:"resourceId"`
	Payload    string    `db:"payload" json:"payload"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
