// Package export produces the downloadable snapshot of a role's
// membership: a csv of (user_id, username) pairs zipped into a single
// archive and uploaded to blob storage under a fixed key.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/flate"

	"github.com/pacificderg/autoblock-bot/pkg/blob"
	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/models"
	"github.com/pacificderg/autoblock-bot/pkg/store"
)

const (
	// ArchiveKey is the fixed blob key; each run overwrites the prior export.
	ArchiveKey = "autoblock_blacklist.zip"
	entryName  = "usernames.csv"
)

// Run snapshots the role's membership and uploads the archive. The sole
// consumer of the artifact is the /getlist command.
func Run(dst *blob.Store, role models.Role) error {
	recs, err := store.ListByRole(role)
	if err != nil {
		return fmt.Errorf("list %s members: %w", role, err)
	}
	logger.Info("export_snapshot", "role", role, "members", len(recs))

	data, err := BuildArchive(recs)
	if err != nil {
		return err
	}
	if err := dst.Put(ArchiveKey, data); err != nil {
		return fmt.Errorf("upload export: %w", err)
	}
	logger.Info("export_uploaded", "key", ArchiveKey, "bytes", len(data))
	return nil
}

// BuildArchive serializes the records as csv and wraps them in a zip
// archive deflated with the klauspost encoder.
func BuildArchive(recs []models.RoleRecord) ([]byte, error) {
	var csvBuf bytes.Buffer
	cw := csv.NewWriter(&csvBuf)
	if err := cw.Write([]string{"user_id", "username"}); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := cw.Write([]string{strconv.FormatInt(rec.UserID, 10), rec.Username}); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	f, err := zw.Create(entryName)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(csvBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return zipBuf.Bytes(), nil
}

// ReadArchive parses an archive produced by BuildArchive back into
// (user_id, username) pairs.
func ReadArchive(data []byte) ([]models.RoleRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		rows, err := csv.NewReader(rc).ReadAll()
		if err != nil {
			return nil, err
		}
		var out []models.RoleRecord
		for i, row := range rows {
			if i == 0 || len(row) < 2 {
				continue
			}
			id, err := strconv.ParseInt(row[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad user id %q", i, row[0])
			}
			out = append(out, models.RoleRecord{UserID: id, Username: row[1]})
		}
		return out, nil
	}
	return nil, fmt.Errorf("archive has no %s entry", entryName)
}
