package files

import (
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

func init() {
	ensureMimeType(".webp", "image/webp")
	ensureMimeType(".svg", "image/svg+xml")
	ensureMimeType(".csv", "text/csv; charset=utf-8")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("files: failed to register MIME type for %s: %v", ext, err)
	}
}

// contentType prefers the declared type, then the extension, then sniffing.
func contentType(declared, name string, body []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(body)
}
