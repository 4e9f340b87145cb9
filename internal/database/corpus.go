package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mutqin/backend/internal/core"
)

// AyahsByPage returns the ayahs printed on one mushaf page, in reading order.
func (s *Store) AyahsByPage(ctx context.Context, page int) ([]core.Ayah, error) {
	var ayahs []core.Ayah
	err := s.db.SelectContext(ctx, &ayahs, `
		SELECT id, surah_number, ayah_number, juz_number, page_number, hizb_quarter, text_uthmani
		FROM ayahs
		WHERE page_number = $1
		ORDER BY surah_number ASC, ayah_number ASC`, page)
	if err != nil {
		return nil, fmt.Errorf("ayahs by page: %w", err)
	}
	return ayahs, nil
}

// SeededPages returns the distinct page numbers present in the corpus.
func (s *Store) SeededPages(ctx context.Context) ([]int, error) {
	var pages []int
	err := s.db.SelectContext(ctx, &pages, `
		SELECT DISTINCT page_number FROM ayahs ORDER BY page_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("seeded pages: %w", err)
	}
	return pages, nil
}

// MemorizedPages returns pages on which the user holds at least one
// memorized item; the fluency gate avoids them when choosing a test page.
func (s *Store) MemorizedPages(ctx context.Context, userID uuid.UUID) ([]int, error) {
	var pages []int
	err := s.db.SelectContext(ctx, &pages, `
		SELECT DISTINCT a.page_number
		FROM user_item_states uis
		JOIN ayahs a ON a.id = uis.ayah_id
		WHERE uis.user_id = $1 AND uis.status = 'MEMORIZED'
		ORDER BY a.page_number ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("memorized pages: %w", err)
	}
	return pages, nil
}

// CorpusCount returns the number of seeded ayah rows.
func (s *Store) CorpusCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM ayahs`); err != nil {
		return 0, fmt.Errorf("corpus count: %w", err)
	}
	return n, nil
}

// SeedAyahs loads corpus rows idempotently: re-running a seed file changes
// nothing once the rows exist.
func (s *Store) SeedAyahs(ctx context.Context, ayahs []core.Ayah) (int, error) {
	inserted := 0
	for i := range ayahs {
		a := &ayahs[i]
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO ayahs (id, surah_number, ayah_number, juz_number, page_number, hizb_quarter, text_uthmani)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (surah_number, ayah_number) DO NOTHING`,
			a.ID, a.SurahNumber, a.AyahNumber, a.JuzNumber, a.PageNumber, a.HizbQuarter, a.TextUthmani)
		if err != nil {
			return inserted, fmt.Errorf("seed ayah %d:%d: %w", a.SurahNumber, a.AyahNumber, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
