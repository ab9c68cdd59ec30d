package boundary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	atlaserrors "github.com/conneroisu/atlas/internal/errors"

	_ "modernc.org/sqlite"
)

// EPSG codes the GeoPackage reader understands.
const (
	epsgWGS84        = 4326
	epsgWebMercator  = 3857
	srsUndefinedCart = -1
	srsUndefinedGeo  = 0
)

// gpkgLayer is the feature table read from a GeoPackage.
type gpkgLayer struct {
	table    string
	geomCol  string
	srsID    int64
	epsgCode int64
}

// geoPackageDSN builds an SQLite URI for path. The path is escaped so that
// '?', '#' and '%' in file or directory names stay part of the path.
func geoPackageDSN(path, mode string) string {
	return (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=" + mode}).String()
}

// readGeoPackage reads the first feature table of a GeoPackage as WGS84
// features.
func readGeoPackage(ctx context.Context, path string) (*geojson.FeatureCollection, error) {
	db, err := sql.Open("sqlite", geoPackageDSN(path, "ro"))
	if err != nil {
		return nil, fmt.Errorf("open geopackage: %w", err)
	}
	defer db.Close()

	layer, err := firstFeatureTable(ctx, db)
	if err != nil {
		return nil, err
	}

	var reproject orb.Projection
	switch layer.epsgCode {
	case epsgWGS84, srsUndefinedCart, srsUndefinedGeo:
	case epsgWebMercator:
		reproject = project.Mercator.ToWGS84
	default:
		return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeUnsupportedCRS,
			fmt.Sprintf("table %q uses EPSG:%d; only EPSG:4326 and EPSG:3857 are supported", layer.table, layer.epsgCode), nil)
	}

	pk, err := primaryKey(ctx, db, layer.table)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(layer.table))
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", layer.table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		feature := geojson.NewFeature(nil)
		for i, col := range columns {
			switch {
			case strings.EqualFold(col, layer.geomCol):
				blob, _ := values[i].([]byte)
				geom, err := decodeGeoPackageGeometry(blob)
				if err != nil {
					return nil, fmt.Errorf("row geometry: %w", err)
				}
				if geom != nil && reproject != nil {
					geom = project.Geometry(geom, reproject)
				}
				feature.Geometry = geom
			case pk != "" && strings.EqualFold(col, pk):
				feature.ID = values[i]
			default:
				if v, ok := propertyValue(values[i]); ok {
					feature.Properties[col] = v
				}
			}
		}
		fc.Append(feature)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fc, nil
}

func firstFeatureTable(ctx context.Context, db *sql.DB) (*gpkgLayer, error) {
	const q = `
SELECT c.table_name, g.column_name, g.srs_id,
       COALESCE(s.organization, ''), COALESCE(s.organization_coordsys_id, g.srs_id)
FROM gpkg_contents c
JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
LEFT JOIN gpkg_spatial_ref_sys s ON s.srs_id = g.srs_id
WHERE c.data_type = 'features'
ORDER BY c.rowid
LIMIT 1`

	var (
		layer gpkgLayer
		org   string
	)
	err := db.QueryRowContext(ctx, q).Scan(&layer.table, &layer.geomCol, &layer.srsID, &org, &layer.epsgCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeUnsupportedFormat, "geopackage has no feature tables", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read gpkg_contents: %w", err)
	}
	if org != "" && !strings.EqualFold(org, "EPSG") {
		layer.epsgCode = layer.srsID
	}
	return &layer, nil
}

func primaryKey(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return "", fmt.Errorf("table info %q: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return "", err
		}
		if pk == 1 && strings.EqualFold(typ, "INTEGER") {
			return name, nil
		}
	}
	return "", rows.Err()
}

// decodeGeoPackageGeometry strips the GeoPackage binary header and decodes the
// WKB body. Empty geometries decode to nil.
func decodeGeoPackageGeometry(blob []byte) (orb.Geometry, error) {
	if blob == nil {
		return nil, nil
	}
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, errors.New("not a GeoPackage geometry blob")
	}

	flags := blob[3]
	if flags&0x20 != 0 {
		return nil, errors.New("extended GeoPackage geometries are not supported")
	}

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
		envelope = 0
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, fmt.Errorf("invalid envelope indicator %d", (flags>>1)&0x07)
	}

	header := 8 + envelope
	if len(blob) < header {
		return nil, errors.New("truncated GeoPackage geometry header")
	}
	if flags&0x10 != 0 {
		return nil, nil
	}
	return wkb.Unmarshal(blob[header:])
}

func propertyValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []byte:
		return nil, false
	case time.Time:
		return t.Format(time.RFC3339), true
	default:
		return t, true
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
