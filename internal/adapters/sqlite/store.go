// Package sqlite provides the SQLite-backed layer registry store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/geoflux/stratum/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS layer_records (
	resource_id      TEXT PRIMARY KEY,
	service_name     TEXT NOT NULL,
	service_url      TEXT NOT NULL,
	service_type     TEXT NOT NULL,
	layer_name       TEXT NOT NULL,
	layer_title      TEXT NOT NULL,
	layer_abstract   TEXT NOT NULL DEFAULT '',
	bbox_crs         TEXT,
	bbox_min_x       REAL,
	bbox_min_y       REAL,
	bbox_max_x       REAL,
	bbox_max_y       REAL,
	default_crs      TEXT NOT NULL DEFAULT '',
	default_style    TEXT NOT NULL DEFAULT '',
	formats          TEXT NOT NULL DEFAULT '[]',
	tile_matrix_sets TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	UNIQUE (service_url, service_type, layer_name)
);

CREATE INDEX IF NOT EXISTS idx_layer_records_scope ON layer_records (service_url, service_type);
CREATE INDEX IF NOT EXISTS idx_layer_records_name  ON layer_records (layer_name);
`

// recordColumns is the column list every record SELECT uses, in the order
// scanRecord expects.
const recordColumns = `resource_id, service_name, service_url, service_type,
	layer_name, layer_title, layer_abstract,
	bbox_crs, bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y,
	default_crs, default_style, formats, tile_matrix_sets, created_at, updated_at`

// sqliteTimeLayout matches the text form the driver uses when binding
// time.Time values. Aggregate results lose their column type, so MIN() over a
// timestamp column comes back as text and has to be parsed with this layout.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// Store implements the LayerStore port on a single SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens the registry database at path, creating the file and schema on
// first use.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Operation: "migrate", Key: path, Err: err}
	}

	return &Store{db: db}, nil
}

// UpsertBatch writes one parse batch for a service scope in a single
// transaction. New layers get fresh resource ids; existing ones are updated
// only when a mutable field differs, so resource ids and created_at stay
// stable across refreshes.
func (s *Store) UpsertBatch(ctx context.Context, reg domain.ServiceRegistration, descriptors []domain.LayerDescriptor) (*domain.RegistrationReport, error) {
	report := &domain.RegistrationReport{
		ServiceURL:  reg.ServiceURL,
		ServiceType: reg.ServiceType,
		ServiceName: reg.ServiceName,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StorageError{Operation: "upsert", Key: reg.Key(), Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, d := range descriptors {
		existing, err := getByScope(ctx, tx, reg, d.Name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id := uuid.NewString()
			if err := insertRecord(ctx, tx, id, reg, d, now); err != nil {
				return nil, &domain.StorageError{Operation: "upsert", Key: reg.Key(), Err: err}
			}
			report.Inserted++
			report.ResourceIDs = append(report.ResourceIDs, id)
		case err != nil:
			return nil, &domain.StorageError{Operation: "upsert", Key: reg.Key(), Err: err}
		default:
			if existing.Apply(d) {
				if err := updateRecord(ctx, tx, existing, now); err != nil {
					return nil, &domain.StorageError{Operation: "upsert", Key: reg.Key(), Err: err}
				}
				report.Updated++
			} else {
				report.Unchanged++
			}
			report.ResourceIDs = append(report.ResourceIDs, existing.ResourceID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &domain.StorageError{Operation: "upsert", Key: reg.Key(), Err: err}
	}
	return report, nil
}

// Get returns the record behind a resource id.
func (s *Store) Get(ctx context.Context, resourceID string) (*domain.LayerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM layer_records WHERE resource_id = ?", resourceID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLayerNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Operation: "get", Key: resourceID, Err: err}
	}
	return &rec, nil
}

// FindByName returns all records whose layer name matches case-insensitively,
// optionally narrowed to one service type.
func (s *Store) FindByName(ctx context.Context, name string, typeHint domain.ServiceType) ([]domain.LayerRecord, error) {
	query := "SELECT " + recordColumns + " FROM layer_records WHERE LOWER(layer_name) = LOWER(?)"
	args := []any{name}
	if typeHint != "" {
		query += " AND service_type = ?"
		args = append(args, string(typeHint))
	}
	query += " ORDER BY service_url, service_type"

	return s.queryRecords(ctx, "find_by_name", query, args...)
}

// List returns records matching the filter, ordered by service and layer
// name. The substring match relies on LIKE being ASCII case-insensitive in
// SQLite.
func (s *Store) List(ctx context.Context, filter domain.ListFilter) ([]domain.LayerRecord, error) {
	filter.Normalize()

	var (
		conds []string
		args  []any
	)
	if filter.ServiceType != "" {
		conds = append(conds, "service_type = ?")
		args = append(args, string(filter.ServiceType))
	}
	if filter.ServiceName != "" {
		conds = append(conds, "service_name = ?")
		args = append(args, filter.ServiceName)
	}
	if filter.Query != "" {
		pattern := "%" + escapeLike(filter.Query) + "%"
		conds = append(conds, `(layer_name LIKE ? ESCAPE '\' OR layer_title LIKE ? ESCAPE '\' OR layer_abstract LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	query := "SELECT " + recordColumns + " FROM layer_records"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY service_name, layer_name LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return s.queryRecords(ctx, "list", query, args...)
}

// Delete removes one record by resource id.
func (s *Store) Delete(ctx context.Context, resourceID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM layer_records WHERE resource_id = ?", resourceID)
	if err != nil {
		return &domain.StorageError{Operation: "delete", Key: resourceID, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.StorageError{Operation: "delete", Key: resourceID, Err: err}
	}
	if affected == 0 {
		return domain.ErrLayerNotFound
	}
	return nil
}

// ListServices returns the distinct registered service scopes with their
// layer counts and first registration times.
func (s *Store) ListServices(ctx context.Context) ([]domain.ServiceRegistration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_url, service_type, service_name, COUNT(*), MIN(created_at)
		FROM layer_records
		GROUP BY service_url, service_type, service_name
		ORDER BY service_name, service_url`)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list_services", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var services []domain.ServiceRegistration
	for rows.Next() {
		var (
			reg        domain.ServiceRegistration
			registered string
		)
		if err := rows.Scan(&reg.ServiceURL, &reg.ServiceType, &reg.ServiceName, &reg.LayerCount, &registered); err != nil {
			return nil, &domain.StorageError{Operation: "list_services", Err: err}
		}
		reg.RegisteredAt, err = time.Parse(sqliteTimeLayout, registered)
		if err != nil {
			return nil, &domain.StorageError{Operation: "list_services", Err: err}
		}
		services = append(services, reg)
	}
	return services, rows.Err()
}

// Stats aggregates registry contents.
func (s *Store) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	stats := &domain.RegistryStats{
		ByServiceType: make(map[domain.ServiceType]int),
		ByServiceName: make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT service_url || '|' || service_type)
		FROM layer_records`).Scan(&stats.TotalLayers, &stats.ServiceCount)
	if err != nil {
		return nil, &domain.StorageError{Operation: "stats", Err: err}
	}

	if err := s.countGroups(ctx, "service_type", func(key string, n int) {
		stats.ByServiceType[domain.ServiceType(key)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.countGroups(ctx, "service_name", func(key string, n int) {
		stats.ByServiceName[key] = n
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

// countGroups runs a GROUP BY count over one column and feeds each row to
// collect. The column name is a compile-time constant, never caller input.
func (s *Store) countGroups(ctx context.Context, column string, collect func(key string, n int)) error {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM layer_records GROUP BY %s", column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return &domain.StorageError{Operation: "stats", Err: err}
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return &domain.StorageError{Operation: "stats", Err: err}
		}
		collect(key, n)
	}
	return rows.Err()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryRecords(ctx context.Context, op, query string, args ...any) ([]domain.LayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StorageError{Operation: op, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var records []domain.LayerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &domain.StorageError{Operation: op, Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Operation: op, Err: err}
	}
	return records, nil
}

func getByScope(ctx context.Context, tx *sql.Tx, reg domain.ServiceRegistration, layerName string) (*domain.LayerRecord, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM layer_records WHERE service_url = ? AND service_type = ? AND layer_name = ?",
		reg.ServiceURL, string(reg.ServiceType), layerName)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, id string, reg domain.ServiceRegistration, d domain.LayerDescriptor, now time.Time) error {
	crs, minX, minY, maxX, maxY := boxColumns(d.BoundingBox)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO layer_records (
			resource_id, service_name, service_url, service_type,
			layer_name, layer_title, layer_abstract,
			bbox_crs, bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y,
			default_crs, default_style, formats, tile_matrix_sets, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, reg.ServiceName, reg.ServiceURL, string(reg.ServiceType),
		d.Name, d.Title, d.Abstract,
		crs, minX, minY, maxX, maxY,
		d.DefaultCRS, d.DefaultStyle, encodeStrings(d.Formats), encodeStrings(d.TileMatrixSets),
		now, now)
	return err
}

func updateRecord(ctx context.Context, tx *sql.Tx, rec *domain.LayerRecord, now time.Time) error {
	crs, minX, minY, maxX, maxY := boxColumns(rec.BoundingBox)
	_, err := tx.ExecContext(ctx, `
		UPDATE layer_records SET
			layer_title = ?, layer_abstract = ?,
			bbox_crs = ?, bbox_min_x = ?, bbox_min_y = ?, bbox_max_x = ?, bbox_max_y = ?,
			default_crs = ?, default_style = ?, formats = ?, tile_matrix_sets = ?,
			updated_at = ?
		WHERE resource_id = ?`,
		rec.LayerTitle, rec.LayerAbstract,
		crs, minX, minY, maxX, maxY,
		rec.DefaultCRS, rec.DefaultStyle, encodeStrings(rec.Formats), encodeStrings(rec.TileMatrixSets),
		now, rec.ResourceID)
	return err
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.LayerRecord, error) {
	var (
		rec                    domain.LayerRecord
		crs                    sql.NullString
		minX, minY, maxX, maxY sql.NullFloat64
		formats, matrixSets    string
	)
	err := row.Scan(
		&rec.ResourceID, &rec.ServiceName, &rec.ServiceURL, &rec.ServiceType,
		&rec.LayerName, &rec.LayerTitle, &rec.LayerAbstract,
		&crs, &minX, &minY, &maxX, &maxY,
		&rec.DefaultCRS, &rec.DefaultStyle, &formats, &matrixSets,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.LayerRecord{}, err
	}

	if crs.Valid {
		rec.BoundingBox = &domain.BoundingBox{
			CRS:  crs.String,
			MinX: minX.Float64,
			MinY: minY.Float64,
			MaxX: maxX.Float64,
			MaxY: maxY.Float64,
		}
	}
	rec.Formats = decodeStrings(formats)
	rec.TileMatrixSets = decodeStrings(matrixSets)
	return rec, nil
}

func boxColumns(b *domain.BoundingBox) (crs sql.NullString, minX, minY, maxX, maxY sql.NullFloat64) {
	if b == nil {
		return
	}
	crs = sql.NullString{String: b.CRS, Valid: true}
	minX = sql.NullFloat64{Float64: b.MinX, Valid: true}
	minY = sql.NullFloat64{Float64: b.MinY, Valid: true}
	maxX = sql.NullFloat64{Float64: b.MaxX, Valid: true}
	maxY = sql.NullFloat64{Float64: b.MaxY, Valid: true}
	return
}

func encodeStrings(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	raw, _ := json.Marshal(vals)
	return string(raw)
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil
	}
	return vals
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards so user queries match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
