package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SQLiteStore keeps the document tree in SQLite. Writes are document
// granular: Push and Update each store one JSON document at their path, and
// Get reassembles subtrees from the documents stored below a path.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := AutoMigrateModels(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func unavailable(op, path string, err error) error {
	return fmt.Errorf("%w: sqlite %s %s: %v", apierr.ErrStoreUnavailable, op, path, err)
}

// subtreeQuery selects every document strictly below prefix. The range
// [prefix/, prefix0) is exactly the set of strings starting with "prefix/".
func subtreeQuery(prefix string) sq.SelectBuilder {
	return psql.Select("path", "value").
		From(models.DocumentNode{}.TableName()).
		Where(sq.And{
			sq.GtOrEq{"path": prefix + "/"},
			sq.Lt{"path": prefix + "0"},
		}).
		OrderBy("path")
}

func (s *SQLiteStore) loadNode(tx *gorm.DB, path string) (*models.DocumentNode, error) {
	var node models.DocumentNode
	err := tx.Where("path = ?", path).Take(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// findAncestor returns the closest stored document above segments together
// with the segments remaining below it.
func (s *SQLiteStore) findAncestor(tx *gorm.DB, segments []string) (*models.DocumentNode, []string, error) {
	for i := len(segments) - 1; i > 0; i-- {
		node, err := s.loadNode(tx, strings.Join(segments[:i], "/"))
		if err != nil {
			return nil, nil, err
		}
		if node != nil {
			return node, segments[i:], nil
		}
	}
	return nil, nil, nil
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	segments := splitPath(path)
	key := strings.Join(segments, "/")
	tx := s.db.WithContext(ctx)

	var (
		value any
		found bool
	)
	if key != "" {
		node, err := s.loadNode(tx, key)
		if err != nil {
			return nil, unavailable("get", key, err)
		}
		if node != nil {
			if err := json.Unmarshal([]byte(node.Value), &value); err != nil {
				return nil, fmt.Errorf("corrupt document at %s: %w", node.Path, err)
			}
			found = true
		}
	}

	var rows []models.DocumentNode
	query := subtreeQuery(key)
	if key == "" {
		query = psql.Select("path", "value").From(models.DocumentNode{}.TableName()).OrderBy("path")
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for Get: %w", err)
	}
	if err := tx.Raw(sqlStr, args...).Scan(&rows).Error; err != nil {
		return nil, unavailable("get", key, err)
	}

	if len(rows) > 0 {
		// documents stored below key are children of the document at key;
		// a scalar at key is replaced by them
		tree, ok := value.(map[string]any)
		if !ok {
			tree = make(map[string]any)
		}
		for _, row := range rows {
			var child any
			if err := json.Unmarshal([]byte(row.Value), &child); err != nil {
				return nil, fmt.Errorf("corrupt document at %s: %w", row.Path, err)
			}
			rel := strings.TrimPrefix(row.Path, key)
			treeSet(tree, splitPath(rel), child)
		}
		return json.Marshal(tree)
	}
	if found {
		return json.Marshal(value)
	}

	ancestor, rest, err := s.findAncestor(tx, segments)
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	if ancestor == nil {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal([]byte(ancestor.Value), &doc); err != nil {
		return nil, fmt.Errorf("corrupt document at %s: %w", ancestor.Path, err)
	}
	inner, ok := treeGet(doc, rest)
	if !ok {
		return nil, nil
	}
	return json.Marshal(inner)
}

// deleteSubtree removes the document at key and every document below it.
func (s *SQLiteStore) deleteSubtree(tx *gorm.DB, key string) error {
	deleteBuilder := psql.Delete(models.DocumentNode{}.TableName())
	if key != "" {
		deleteBuilder = deleteBuilder.Where(sq.Or{
			sq.Eq{"path": key},
			sq.And{sq.GtOrEq{"path": key + "/"}, sq.Lt{"path": key + "0"}},
		})
	}
	sqlStr, args, err := deleteBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for Delete: %w", err)
	}
	return tx.Exec(sqlStr, args...).Error
}

func (s *SQLiteStore) Update(ctx context.Context, path string, fields map[string]any) error {
	key := strings.Join(splitPath(path), "/")
	if key == "" {
		return fmt.Errorf("sqlite store: update requires a non-root path")
	}
	if len(fields) == 0 {
		return fmt.Errorf("sqlite store: update of %s requires at least one field", key)
	}
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		if !ValidKey(k) {
			return fmt.Errorf("sqlite store: invalid field name %q", k)
		}
		if v == nil {
			normalized[k] = nil
			continue
		}
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[k] = nv
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a written or removed field replaces whatever was pushed below it
		for k := range normalized {
			if err := s.deleteSubtree(tx, key+"/"+k); err != nil {
				return err
			}
		}

		doc := make(map[string]any)
		node, err := s.loadNode(tx, key)
		if err != nil {
			return err
		}
		if node != nil {
			if err := json.Unmarshal([]byte(node.Value), &doc); err != nil {
				// a scalar is replaced by the merged object
				doc = make(map[string]any)
			}
		}
		treeMerge(doc, normalized)
		if len(doc) == 0 {
			return tx.Where("path = ?", key).Delete(&models.DocumentNode{}).Error
		}
		return s.upsert(tx, key, doc)
	})
	if err != nil {
		return unavailable("update", key, err)
	}
	return nil
}

func (s *SQLiteStore) upsert(tx *gorm.DB, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	node := models.DocumentNode{Path: key, Value: string(data), UpdatedAt: time.Now().Unix()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&node).Error
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	segments := splitPath(path)
	key := strings.Join(segments, "/")

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deleteSubtree(tx, key); err != nil {
			return err
		}

		// the path may also live inside a stored document
		ancestor, rest, err := s.findAncestor(tx, segments)
		if err != nil || ancestor == nil {
			return err
		}
		doc := make(map[string]any)
		if err := json.Unmarshal([]byte(ancestor.Value), &doc); err != nil {
			return nil
		}
		if treeDelete(doc, rest) {
			return tx.Where("path = ?", ancestor.Path).Delete(&models.DocumentNode{}).Error
		}
		return s.upsert(tx, ancestor.Path, doc)
	})
	if err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func (s *SQLiteStore) Push(ctx context.Context, path string, value any) (string, error) {
	parent := strings.Join(splitPath(path), "/")
	childKey, err := NewPushKey()
	if err != nil {
		return "", err
	}
	nv, err := normalize(value)
	if err != nil {
		return "", err
	}
	full := childKey
	if parent != "" {
		full = parent + "/" + childKey
	}
	if err := s.upsert(s.db.WithContext(ctx), full, nv); err != nil {
		return "", unavailable("push", parent, err)
	}
	return childKey, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ DocumentStore = (*SQLiteStore)(nil)
