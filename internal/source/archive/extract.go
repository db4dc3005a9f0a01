package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/tigerroll/citibike/internal/schema"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// ExtractCSV parses every .csv entry of a zip archive in name order and
// concatenates them into one table. Large months are published as numbered
// chunks, so name order is chunk order.
func ExtractCSV(data []byte) (*schema.Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, exception.NewKindError(exception.KindSchemaInvalid, module, "invalid zip archive", err)
	}

	files := make(map[string]*zip.File)
	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".csv") || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		files[f.Name] = f
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		return nil, exception.NewKindError(exception.KindSchemaInvalid, module, "no CSV file found in zip archive", nil)
	}
	sort.Strings(names)

	var combined *schema.Table
	for _, name := range names {
		chunk, err := readEntry(files[name])
		if err != nil {
			return nil, err
		}
		logger.Debugf("Read %d rows from %s", chunk.Len(), name)
		if combined == nil {
			combined = chunk
			continue
		}
		if err := combined.Append(chunk); err != nil {
			return nil, exception.NewKindError(exception.KindSchemaInvalid, module, fmt.Sprintf("chunk %s does not match %s", name, names[0]), err)
		}
	}
	return combined, nil
}

func readEntry(f *zip.File) (*schema.Table, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, exception.NewKindError(exception.KindSchemaInvalid, module, fmt.Sprintf("failed to open %s", f.Name), err)
	}
	defer rc.Close()
	return schema.ReadCSV(rc)
}
