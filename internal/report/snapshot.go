package report

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"

	"retailledger/internal/domain"
)

const JSONContentType = "application/json"

// WriteSnapshotJSON writes the full dump as indented JSON.
func WriteSnapshotJSON(w io.Writer, snap domain.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func newSuffix() string {
	return uuid.NewString()[:8]
}
