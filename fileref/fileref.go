package fileref

import (
	"regexp"
	"strings"
)

// FileReference is the wire shape the repository expects for a file-valued
// column that has not been pre-resolved to an existing file identifier.
type FileReference struct {
	SourcePath  string `json:"sourcePath"`
	TargetPath  string `json:"targetPath"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// cloudPathPattern matches values that look like cloud object paths. The
// repository treats any such column as a fileref column.
var cloudPathPattern = regexp.MustCompile(`^(gs|s3)://`)

func IsCloudPath(s string) bool {
	return cloudPathPattern.MatchString(s)
}

// TargetPath strips the scheme and bucket from a cloud path, leaving an
// absolute repository-relative path.
//
// "gs://bucket/dir/file.cram" -> "/dir/file.cram"
func TargetPath(cloudPath string) string {
	parts := strings.Split(cloudPath, "/")
	if len(parts) <= 3 {
		return "/"
	}
	return "/" + strings.Join(parts[3:], "/")
}

// New builds a FileReference for a raw cloud path value.
func New(cloudPath string) FileReference {
	return FileReference{
		SourcePath: cloudPath,
		TargetPath: TargetPath(cloudPath),
	}
}

// NewWithDetails is used by the bulk file ingest path where the caller
// knows the content type.
func NewWithDetails(cloudPath, description, mimeType string) FileReference {
	fr := New(cloudPath)
	fr.Description = description
	fr.MimeType = mimeType
	return fr
}
