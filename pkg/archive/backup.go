package archive

import (
	"encoding/binary"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Backup is the redundant copy written under archive_backup_<id>.
type Backup struct {
	ArchiveID     string          `json:"archiveId"`
	Data          json.RawMessage `json:"data"`
	Metadata      *Record         `json:"metadata"`
	BackupCreated time.Time       `json:"backupCreated"`
}

// Compressed backups start with a one-byte tag followed by the uvarint length
// of the JSON body. Plain JSON backups start with '{' and carry no header.
const (
	tagLZ4  byte = 0x01
	tagZstd byte = 0x02
)

// maxBackupBytes bounds the declared body length of a compressed backup.
const maxBackupBytes = 1 << 30

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeBackup serializes b. Bodies that do not shrink are stored as plain JSON.
func encodeBackup(b *Backup, enc BackupEncoding) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}

	var (
		tag  byte
		body []byte
	)
	switch enc {
	case BackupZstd:
		tag, body = tagZstd, zstdEncoder.EncodeAll(raw, nil)
	case BackupLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress backup: %w", err)
		}
		if n == 0 {
			return raw, nil
		}
		tag, body = tagLZ4, dst[:n]
	default:
		return raw, nil
	}

	header := make([]byte, 1+binary.MaxVarintLen64)
	header[0] = tag
	hn := binary.PutUvarint(header[1:], uint64(len(raw)))
	if 1+hn+len(body) >= len(raw) {
		return raw, nil
	}
	return append(header[:1+hn], body...), nil
}

// decodeBackup reverses encodeBackup, detecting the encoding from the first byte.
func decodeBackup(data []byte) (*Backup, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty backup")
	}

	raw := data
	if data[0] == tagLZ4 || data[0] == tagZstd {
		size, n := binary.Uvarint(data[1:])
		if n <= 0 || size > maxBackupBytes {
			return nil, fmt.Errorf("corrupt backup header")
		}
		body := data[1+n:]
		switch data[0] {
		case tagLZ4:
			dst := make([]byte, size)
			read, err := lz4.UncompressBlock(body, dst)
			if err != nil {
				return nil, fmt.Errorf("lz4 decompress backup: %w", err)
			}
			if uint64(read) != size {
				return nil, fmt.Errorf("lz4 decompress backup: got %d bytes, expected %d", read, size)
			}
			raw = dst
		case tagZstd:
			out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
			if err != nil {
				return nil, fmt.Errorf("zstd decompress backup: %w", err)
			}
			raw = out
		}
	}

	var b Backup
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("unmarshal backup: %w", err)
	}
	if b.Metadata == nil || len(b.Data) == 0 {
		return nil, fmt.Errorf("backup is incomplete")
	}
	return &b, nil
}
