package attachments

import "time"

// Attachment is a stored file linked to a business document.
type Attachment struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	FileName   string    `json:"file_name"`
	StoredName string    `json:"-"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedBy int64     `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// entityTypes lists the document kinds an attachment may hang off.
var entityTypes = map[string]bool{
	"quotation":      true,
	"sales_order":    true,
	"purchase_order": true,
	"invoice":        true,
	"vendor_bill":    true,
	"journal_entry":  true,
	"customer":       true,
	"vendor":         true,
	"product":        true,
}
