package archive

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func testBackup(t *testing.T) *Backup {
	t.Helper()
	data, err := json.Marshal(sessionRecords(200, epoch))
	require.NoError(t, err)
	return &Backup{
		ArchiveID:     "sessions_1_abc",
		Data:          data,
		Metadata:      &Record{ID: "sessions_1_abc", DataType: "sessions", CreatedAt: epoch, Version: RecordVersion},
		BackupCreated: epoch,
	}
}

func TestBackupRoundTrip(t *testing.T) {
	tests := []struct {
		enc   BackupEncoding
		first byte
	}{
		{BackupJSON, '{'},
		{BackupZstd, tagZstd},
		{BackupLZ4, tagLZ4},
	}
	for _, tt := range tests {
		t.Run(string(tt.enc), func(t *testing.T) {
			in := testBackup(t)
			raw, err := encodeBackup(in, tt.enc)
			require.NoError(t, err)
			require.Equal(t, tt.first, raw[0])

			out, err := decodeBackup(raw)
			require.NoError(t, err)
			require.Equal(t, in.ArchiveID, out.ArchiveID)
			require.JSONEq(t, string(in.Data), string(out.Data))
			require.Equal(t, in.Metadata.ID, out.Metadata.ID)
			require.True(t, out.BackupCreated.Equal(epoch))
		})
	}
}

func TestDecodeBackup_Corrupt(t *testing.T) {
	for name, raw := range map[string][]byte{
		"empty":       nil,
		"bad json":    []byte("{"),
		"bad header":  {tagZstd, 0xff},
		"bad body":    append([]byte{tagLZ4, 0x10}, bytes.Repeat([]byte{0xff}, 8)...),
		"no metadata": []byte(`{"archiveId":"a","data":1}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeBackup(raw)
			require.Error(t, err)
		})
	}
}
