package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Queries holds every metadata operation. It runs either on the pool
// (Store) or on a pinned job connection (Session).
type Queries struct {
	db *gorm.DB
}

func lookupGroup(tx *gorm.DB, name string) (*Group, error) {
	var g Group
	err := tx.Where("name = ?", name).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up group %s: %w", name, err)
	}
	return &g, nil
}

// LookupGroup returns the group with the given name.
func (q *Queries) LookupGroup(ctx context.Context, name string) (*Group, error) {
	return lookupGroup(q.db.WithContext(ctx), name)
}

// CreateGroup inserts a new group.
func (q *Queries) CreateGroup(ctx context.Context, name string) (*Group, error) {
	g := &Group{Name: name}
	err := q.db.WithContext(ctx).Create(g).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %s", ErrGroupExists, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create group %s: %w", name, err)
	}
	return g, nil
}

// ListGroups returns all groups ordered by name.
func (q *Queries) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := q.db.WithContext(ctx).Order("name").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// DeleteGroup removes a group and everything it owns. Child rows are deleted
// explicitly so the result does not depend on the driver enforcing foreign
// keys.
func (q *Queries) DeleteGroup(ctx context.Context, name string) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lookupGroup(tx, name)
		if err != nil {
			return err
		}
		for _, model := range []any{&MindMap{}, &Summary{}, &Document{}} {
			if err := tx.Where("group_id = ?", g.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete rows of group %s: %w", name, err)
			}
		}
		if err := tx.Delete(g).Error; err != nil {
			return fmt.Errorf("failed to delete group %s: %w", name, err)
		}
		return nil
	})
}

// RegisterDocument records an uploaded file. Registering the same file twice
// returns the existing row and created=false.
func (q *Queries) RegisterDocument(ctx context.Context, group, fileName, storagePath string) (doc *Document, created bool, err error) {
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lookupGroup(tx, group)
		if err != nil {
			return err
		}
		doc = &Document{}
		res := tx.Where(Document{GroupID: g.ID, FileName: fileName}).
			Attrs(Document{StoragePath: storagePath}).
			FirstOrCreate(doc)
		if res.Error != nil {
			return fmt.Errorf("failed to register document %s/%s: %w", group, fileName, res.Error)
		}
		created = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return doc, created, nil
}

// Documents lists the documents of a group, oldest first.
func (q *Queries) Documents(ctx context.Context, group string) ([]Document, error) {
	g, err := q.LookupGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := q.db.WithContext(ctx).Where("group_id = ?", g.ID).Order("id").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents of %s: %w", group, err)
	}
	return docs, nil
}

// InsertSummary appends a summary row. The group is looked up inside the
// same transaction, so a group deleted mid-job aborts the write.
func (q *Queries) InsertSummary(ctx context.Context, group, fileName, text string) (*Summary, error) {
	var s *Summary
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lookupGroup(tx, group)
		if err != nil {
			return err
		}
		s = &Summary{GroupID: g.ID, FileName: fileName, SummaryText: text}
		if err := tx.Create(s).Error; err != nil {
			return fmt.Errorf("failed to insert summary for %s/%s: %w", group, fileName, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Summaries returns summaries of a group, newest first. A fileName filters
// to one document; limit <= 0 means no limit.
func (q *Queries) Summaries(ctx context.Context, group, fileName string, limit int) ([]Summary, error) {
	g, err := q.LookupGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	query := q.db.WithContext(ctx).Where("group_id = ?", g.ID)
	if fileName != "" {
		query = query.Where("file_name = ?", fileName)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var out []Summary
	if err := query.Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list summaries of %s: %w", group, err)
	}
	return out, nil
}

// MindMap returns the stored tree of a group, or ErrMindMapNotFound.
func (q *Queries) MindMap(ctx context.Context, group string) (*MindMap, error) {
	g, err := q.LookupGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	var m MindMap
	err = q.db.WithContext(ctx).Where("group_id = ?", g.ID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMindMapNotFound, group)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mindmap of %s: %w", group, err)
	}
	return &m, nil
}

// CreateMindMap inserts the first tree of a group.
func (q *Queries) CreateMindMap(ctx context.Context, group string, data []byte) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lookupGroup(tx, group)
		if err != nil {
			return err
		}
		err = tx.Create(&MindMap{GroupID: g.ID, Data: datatypes.JSON(data)}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrMindMapExists, group)
		}
		if err != nil {
			return fmt.Errorf("failed to create mindmap of %s: %w", group, err)
		}
		return nil
	})
}

// UpdateMindMap replaces the whole tree of a group. Exactly one row must
// change.
func (q *Queries) UpdateMindMap(ctx context.Context, group string, data []byte) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lookupGroup(tx, group)
		if err != nil {
			return err
		}
		res := tx.Model(&MindMap{}).Where("group_id = ?", g.ID).Update("mindmap_json", datatypes.JSON(data))
		if res.Error != nil {
			return fmt.Errorf("failed to update mindmap of %s: %w", group, res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: %s (%d rows updated)", ErrMindMapNotFound, group, res.RowsAffected)
		}
		return nil
	})
}
