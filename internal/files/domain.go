package files

import (
	"io"
	"time"
)

// File is the stored metadata of an uploaded object.
type File struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	BucketName   string    `json:"bucketName"`
	Path         string    `json:"path"`
	TenantID     string    `json:"tenantId"`
	IsPublic     bool      `json:"isPublic"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FileWithURL adds a retrieval URL: direct when public, presigned otherwise.
type FileWithURL struct {
	File
	URL string `json:"url"`
}

// UploadInput describes an object to store for a tenant.
type UploadInput struct {
	TenantID     string
	OriginalName string
	MimeType     string
	IsPublic     bool
	Path         string
	Body         []byte
}

// Download is an object body with its metadata. Callers close Body.
type Download struct {
	File
	Body          io.ReadCloser
	ContentLength int64
}
