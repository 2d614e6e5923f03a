package export

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"

	"github.com/nicktill/statvault/pkg/archive"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

// MaxImportItems caps the datasets accepted in one import.
const MaxImportItems = 1000

// Archiver stores one dataset.
type Archiver interface {
	Archive(ctx context.Context, data any, dataType string, opts archive.Options) (*archive.Result, error)
}

// Importer archives a batch of datasets from a JSON document.
type Importer struct {
	store Archiver
	clock clockwork.Clock
}

// NewImporter creates a new importer
func NewImporter(store Archiver, clock clockwork.Clock) *Importer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Importer{store: store, clock: clock}
}

// ImportItem is one dataset to archive.
type ImportItem struct {
	DataType string          `json:"dataType"`
	Data     any             `json:"data"`
	Options  archive.Options `json:"options"`
}

// ImportData is the import document layout.
type ImportData struct {
	Items []ImportItem `json:"items"`
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	ArchivesCreated int       `json:"archives_created"`
	ArchiveIDs      []string  `json:"archive_ids"`
	OriginalBytes   int       `json:"original_bytes"`
	ArchivedBytes   int       `json:"archived_bytes"`
	ImportedAt      time.Time `json:"imported_at"`
	Errors          []string  `json:"errors,omitempty"`
}

// ImportFromJSON archives every item of the document. Items rejected as
// invalid are reported and skipped; any other failure stops the import.
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var doc ImportData
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, archerr.Wrap(err, archerr.CodeServerRequestInvalid, "failed to decode import document")
	}
	if len(doc.Items) > MaxImportItems {
		return nil, archerr.Errorf(archerr.CodeServerRequestInvalid,
			"import holds %d items, maximum is %d", len(doc.Items), MaxImportItems)
	}

	result := &ImportResult{ArchiveIDs: make([]string, 0, len(doc.Items))}
	for i, item := range doc.Items {
		res, err := im.store.Archive(ctx, item.Data, item.DataType, item.Options)
		if err != nil {
			if archerr.IsInvalidInput(err) {
				result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i, err))
				continue
			}
			return nil, archerr.Wrapf(err, archerr.CodeServerInternalFailure, "item %d", i)
		}
		result.ArchivesCreated++
		result.ArchiveIDs = append(result.ArchiveIDs, res.ArchiveID)
		result.OriginalBytes += res.OriginalSize
		result.ArchivedBytes += res.ArchivedSize
	}
	result.ImportedAt = im.clock.Now().UTC()
	return result, nil
}
