package imageapi

import "gallery-feed/internal/domain/entity"

// recordDTO is the wire form of a record.
type recordDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	TS          int64  `json:"ts"`
}

// pageDTO is the body of GET /api/images.
// After is null or absent on the last page.
type pageDTO struct {
	Data  []recordDTO `json:"data"`
	After *int64      `json:"after"`
}

// createDTO is the body of POST /api/images.
type createDTO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

func (d recordDTO) toEntity() entity.Record {
	return entity.Record{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		URL:         d.URL,
		Timestamp:   d.TS,
	}
}

// toEntity converts the page. An after of 0 is treated as absent, matching
// servers that send a zero value instead of null on the last page.
func (d pageDTO) toEntity() entity.FeedPage {
	items := make([]entity.Record, 0, len(d.Data))
	for _, r := range d.Data {
		items = append(items, r.toEntity())
	}
	var next entity.Cursor
	if d.After != nil && *d.After != 0 {
		next = entity.CursorAt(*d.After)
	}
	return entity.FeedPage{Items: items, NextCursor: next}
}

func newCreateDTO(rec entity.NewRecord) createDTO {
	return createDTO{
		Title:       rec.Title,
		Description: rec.Description,
		URL:         rec.URL,
	}
}
