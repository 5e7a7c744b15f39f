package integrity

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/nao1215/onionsentry/internal/model"
)

// MaxImageSize limits how much of an image is read for the metadata check.
const MaxImageSize = 20 * 1024 * 1024

// MetadataFinding is an identifying EXIF tag found in a served image.
// The tag value is never kept.
type MetadataFinding struct {
	Tag      string
	Severity model.Severity
}

var imageExtensions = []string{".jpg", ".jpeg", ".tif", ".tiff"}

// metadataTags maps identifying EXIF tags to the severity of serving them.
var metadataTags = map[string]model.Severity{
	// Location
	"GPSLatitude":     model.SeverityCritical,
	"GPSLongitude":    model.SeverityCritical,
	"GPSLatitudeRef":  model.SeverityCritical,
	"GPSLongitudeRef": model.SeverityCritical,

	// Device serials track a camera across photos.
	"SerialNumber":       model.SeverityCritical,
	"CameraSerialNumber": model.SeverityCritical,
	"BodySerialNumber":   model.SeverityCritical,
	"LensSerialNumber":   model.SeverityCritical,

	"Artist":    model.SeverityCritical,
	"Author":    model.SeverityCritical,
	"Copyright": model.SeverityCritical,
	"XPAuthor":  model.SeverityCritical,

	"Make":         model.SeverityWarning,
	"Model":        model.SeverityWarning,
	"HostComputer": model.SeverityWarning,
}

// IsImage reports whether path has an extension that may carry EXIF data.
func IsImage(path string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path)))
}

// CheckImageMetadata returns the identifying EXIF tags in the image at path.
// An image without EXIF data yields no findings and no error. Each tag is
// reported once.
func CheckImageMetadata(path string) ([]MetadataFinding, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from the integrity scan of the configured root
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return imageMetadata(data)
}

func imageMetadata(data []byte) ([]MetadataFinding, error) {
	// Any failure to locate an EXIF block means there is nothing to report.
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil, nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXIF data: %w", err)
	}

	var findings []MetadataFinding
	seen := make(map[string]bool)
	for _, entry := range entries {
		severity, ok := metadataTags[entry.TagName]
		if !ok || seen[entry.TagName] {
			continue
		}
		seen[entry.TagName] = true
		findings = append(findings, MetadataFinding{Tag: entry.TagName, Severity: severity})
	}
	return findings, nil
}
