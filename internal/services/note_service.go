package services

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/aiwuxian/tabletop/internal/models"
	"github.com/aiwuxian/tabletop/internal/storage"
)

// CreateNote 创建笔记；只有 DM 可以创建私密笔记
func (t *Table) CreateNote(author models.Role, text, category string, private bool) (models.Note, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return models.Note{}, fmt.Errorf("%w: note text is empty", ErrValidation)
	}

	note := models.Note{
		ID:        newID(),
		Timestamp: t.stamp(),
		Text:      text,
		Category:  normalizeCategory(category),
		IsPrivate: private && author.IsDM(),
		Author:    author,
	}
	if note.Author == "" {
		note.Author = models.RoleDM
	}

	t.notes = append(t.notes, note)
	t.persistLocked(storage.KeyNotes)
	return note, nil
}

// UpdateNote 替换正文并记录编辑时间，分类与私密标志不变
func (t *Table) UpdateNote(id, text string) (models.Note, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return models.Note{}, fmt.Errorf("%w: note text is empty", ErrValidation)
	}
	idx := t.noteIndexLocked(id)
	if idx < 0 {
		return models.Note{}, fmt.Errorf("%w: note %s", ErrNotFound, id)
	}

	edited := t.stamp()
	t.notes[idx].Text = text
	t.notes[idx].Edited = &edited
	t.persistLocked(storage.KeyNotes)
	return t.notes[idx], nil
}

// DeleteNote 删除笔记
func (t *Table) DeleteNote(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.noteIndexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: note %s", ErrNotFound, id)
	}
	t.notes = append(t.notes[:idx], t.notes[idx+1:]...)
	t.persistLocked(storage.KeyNotes)
	return nil
}

// ListNotes 按查询条件列出笔记；玩家视角排除私密笔记
func (t *Table) ListNotes(q models.NoteQuery) []models.Note {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listNotesLocked(q)
}

func (t *Table) listNotesLocked(q models.NoteQuery) []models.Note {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	category := strings.ToLower(strings.TrimSpace(q.Category))

	notes := make([]models.Note, 0, len(t.notes))
	for _, n := range t.notes {
		if n.IsPrivate && !q.Role.IsDM() {
			continue
		}
		if category != "" && category != "all" && n.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(n.Text), search) {
			continue
		}
		notes = append(notes, n)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		switch q.Sort {
		case models.SortOldest:
			return a.Timestamp.Before(b.Timestamp)
		case models.SortAlphabetical:
			return strings.ToLower(a.Text) < strings.ToLower(b.Text)
		case models.SortCategory:
			if a.Category != b.Category {
				return a.Category < b.Category
			}
			return a.Timestamp.After(b.Timestamp)
		default:
			return a.Timestamp.After(b.Timestamp)
		}
	})
	return notes
}

func (t *Table) noteIndexLocked(id string) int {
	for i := range t.notes {
		if t.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func normalizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if slices.Contains(models.NoteCategories, category) {
		return category
	}
	return models.NoteCategories[0]
}
