package entity

// FileInfo describes the file picked for upload.
// The content itself is streamed to the asset store and never held here.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string
}

// UploadRequest is a candidate submission of a new record.
// URL is the hosted location of the file once the asset upload resolved it;
// it stays empty until then.
type UploadRequest struct {
	Title       string
	Description string
	File        *FileInfo
	URL         string
}

// NewRecord is the payload sent to the remote feed to create a record.
type NewRecord struct {
	Title       string
	Description string
	URL         string
}

// NewRecord returns the payload for this request.
func (r UploadRequest) NewRecord() NewRecord {
	return NewRecord{
		Title:       r.Title,
		Description: r.Description,
		URL:         r.URL,
	}
}
