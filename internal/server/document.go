package server

import "encoding/json"

// Document is one stored record of the document-store API. The key is the
// triple (collection, doc id, owner id); shared collections store an empty
// owner id. Payloads are opaque JSON, the server never interprets entity
// fields.
type Document struct {
	Collection       string `gorm:"column:collection;primaryKey;size:190;not null"`
	DocID            string `gorm:"column:doc_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;primaryKey;size:190;not null;default:''"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// Payload returns the stored document body as raw JSON.
func (d Document) Payload() json.RawMessage {
	return json.RawMessage(d.PayloadJSON)
}
