package vectorindex

import (
	"github.com/kailas-cloud/ragmail/internal/db"
	"github.com/kailas-cloud/ragmail/internal/domain"
)

// buildHashFields converts a record into the flat field map written by HSET.
func buildHashFields(rec domain.Record) map[string]string {
	return map[string]string{
		contentField: rec.Text,
		vectorField:  string(db.EncodeVector(rec.Vector)),
	}
}
