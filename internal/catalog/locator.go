package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"voltdesk/internal/database"
)

var (
	// ErrInvalidQuery means the reference string had no usable terms.
	ErrInvalidQuery = errors.New("catalog: query contains no usable terms")
	// ErrNotFound means no record scored above zero for the query.
	ErrNotFound = errors.New("catalog: no matching manual")
)

// recordColumns guards against NULLs in the optional search fields.
const recordColumns = "id, name, COALESCE(model_number, ''), COALESCE(manual_path, ''), COALESCE(manual_keywords, ''), COALESCE(manual_desc, '')"

// ManualRecord is one row of the product manual catalog. The catalog is
// read-only to the locator; rows are maintained through the admin surface.
type ManualRecord struct {
	ID          int64
	Name        string
	ModelNumber string
	ManualPath  string
	Keywords    string
	Description string
}

// Locator resolves free-text product references against the manual catalog.
type Locator struct {
	db         *database.DB
	manualsDir string
}

// NewLocator creates a locator backed by the given database. Relative manual
// paths resolve against manualsDir.
func NewLocator(db *database.DB, manualsDir string) *Locator {
	return &Locator{db: db, manualsDir: manualsDir}
}

// stripDiacritics removes combining marks after canonical decomposition, so
// "Süpürge" and "supurge" tokenize identically.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips diacritics. Turkish dotless ı carries no
// combining mark, so it needs an explicit mapping to i.
func fold(s string) string {
	s = strings.ToLower(s)
	folded, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		folded = s
	}
	return strings.ReplaceAll(folded, "ı", "i")
}

// Tokenize splits a product reference into lowercase, diacritic-stripped
// terms. Whitespace, hyphens and underscores all separate terms; empty terms
// are discarded.
func Tokenize(query string) []string {
	return strings.FieldsFunc(fold(query), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
}

// Find returns the single best-matching catalog record for the reference, or
// ErrNotFound. Ties resolve to the first candidate in catalog order.
func (l *Locator) Find(ctx context.Context, query string) (*ManualRecord, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, ErrInvalidQuery
	}

	candidates, err := l.narrow(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}

	var best *ManualRecord
	bestScore := 0
	for i := range candidates {
		score := scoreRecord(&candidates[i], terms)
		// Strictly greater keeps the first-encountered candidate on ties.
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// narrow fetches records whose name or model contains at least one term. This
// is only a filter; scoring makes the final decision.
func (l *Locator) narrow(ctx context.Context, terms []string) ([]ManualRecord, error) {
	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)*2)
	for _, t := range terms {
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(model_number) LIKE ?)")
		pattern := "%" + t + "%"
		args = append(args, pattern, pattern)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM products WHERE %s ORDER BY id",
		recordColumns, strings.Join(clauses, " OR "))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ManualRecord
	for rows.Next() {
		var r ManualRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.ModelNumber, &r.ManualPath, &r.Keywords, &r.Description); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// scoreRecord counts terms appearing as substrings of the record's combined
// normalized name+model text, with a single bonus point if any term of length
// 3 or more matched. Short generic tokens alone cannot outrank a distinctive
// model-number hit.
func scoreRecord(r *ManualRecord, terms []string) int {
	haystack := fold(r.Name + " " + r.ModelNumber)
	score := 0
	distinctive := false
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			score++
			if len(t) >= 3 {
				distinctive = true
			}
		}
	}
	if distinctive {
		score++
	}
	return score
}

// ResolvePath turns a record's stored manual path into an absolute path and
// verifies the file exists. A catalog hit whose document is gone reports
// ErrNotFound just like a miss.
func (l *Locator) ResolvePath(r *ManualRecord) (string, error) {
	path := r.ManualPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.manualsDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("manual file %s missing: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("manual file %s unreadable: %w", path, err)
	}
	return path, nil
}

// List returns the whole catalog in insertion order.
func (l *Locator) List(ctx context.Context) ([]ManualRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var records []ManualRecord
	for rows.Next() {
		var r ManualRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.ModelNumber, &r.ManualPath, &r.Keywords, &r.Description); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Upsert inserts or updates a catalog record keyed by model number and
// returns its row ID.
func (l *Locator) Upsert(ctx context.Context, r *ManualRecord) (int64, error) {
	var existing int64
	err := l.db.QueryRowContext(ctx,
		"SELECT id FROM products WHERE model_number = ?", r.ModelNumber).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		res, err := l.db.ExecContext(ctx,
			"INSERT INTO products (name, model_number, manual_path, manual_keywords, manual_desc) VALUES (?, ?, ?, ?, ?)",
			r.Name, r.ModelNumber, r.ManualPath, r.Keywords, r.Description)
		if err != nil {
			return 0, fmt.Errorf("failed to insert product: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("failed to look up product: %w", err)
	default:
		_, err := l.db.ExecContext(ctx,
			"UPDATE products SET name = ?, manual_path = ?, manual_keywords = ?, manual_desc = ? WHERE id = ?",
			r.Name, r.ManualPath, r.Keywords, r.Description, existing)
		if err != nil {
			return 0, fmt.Errorf("failed to update product: %w", err)
		}
		return existing, nil
	}
}
