package app

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/migrations"
)

var createTable = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)

func migratedColumns(t *testing.T) map[string]map[string]struct{} {
	t.Helper()
	files, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	present := make(map[string]map[string]struct{})
	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		for _, m := range createTable.FindAllStringSubmatch(string(body), -1) {
			cols := make(map[string]struct{})
			for _, line := range strings.Split(m[2], "\n") {
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				cols[fields[0]] = struct{}{}
			}
			present[m[1]] = cols
		}
	}
	return present
}

func TestMigrationsCoverSchemaSpecs(t *testing.T) {
	require.NoError(t, db.CompareSchema(migratedColumns(t), SchemaSpecs()))
}

func TestSchemaSpecsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, spec := range SchemaSpecs() {
		require.False(t, seen[spec.Table], "duplicate table spec %s", spec.Table)
		seen[spec.Table] = true
	}
}
