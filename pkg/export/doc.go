// Package export dumps the archive catalog and bulk-loads datasets.
//
// # Export
//
// GET /v1/archives/export writes the metadata of every matching archive.
// Payloads are never included; use the restore endpoint for data.
//
// Query parameters:
//   - format: "json" or "csv" (default: json)
//   - type: data type filter
//   - tag: required tag, may be repeated
//   - start, end: RFC3339 bounds on the archived data's dates
//
// Example:
//
//	curl "http://localhost:8080/v1/archives/export?format=csv&type=sessions" -o catalog.csv
//
// The JSON document holds a metadata header and the records oldest first:
//
//	{
//	  "metadata": {
//	    "exported_at": "2024-06-01T12:00:00Z",
//	    "archive_count": 2,
//	    "format": "json",
//	    "version": "1.0"
//	  },
//	  "archives": [ { "id": "sessions_1717243200000_3f2a9c1d0", ... } ]
//	}
//
// At most config.MaxExportRecords archives are written; the result reports
// truncated when more matched.
//
// # Import
//
// POST /v1/archives/import archives each item of an ImportData document:
//
//	{"items": [{"dataType": "sessions", "data": [...], "options": {"tags": ["migrated"]}}]}
//
// Items the store rejects as invalid are skipped and listed in
// ImportResult.Errors. Storage failures abort the import.
package export
