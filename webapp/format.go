package webapp

import (
	"fmt"
	"math"
	"mime"
	"path"
	"strings"
)

// pdfFileTypes are the media types the file picker offers
var pdfFileTypes = []string{"application/pdf", "image/pdf"}

var byteUnits = []string{"bytes", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// formatBytes renders a size using 1024 steps, with one decimal below 10
// of any unit larger than bytes
func formatBytes(n int64) string {
	v := float64(n)
	l := 0
	for v >= 1024 && l < len(byteUnits)-1 {
		v /= 1024
		l++
	}
	if v < 10 && l > 0 {
		return fmt.Sprintf("%.1f %s", v, byteUnits[l])
	}
	return fmt.Sprintf("%.0f %s", v, byteUnits[l])
}

// progressPercent is value as a CSS width, NaN counting as zero
func progressPercent(value, max float64) string {
	if math.IsNaN(value) || max <= 0 {
		value = 0
	}
	return fmt.Sprintf("%.0f%%", math.Min(value/max, 1)*100)
}

// looksLikePDF mirrors the server's check on the declared type so a wrong
// file is not uploaded. An empty type passes.
func looksLikePDF(declaredType string) bool {
	declaredType = strings.TrimSpace(declaredType)
	if declaredType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(declaredType)
	if err != nil {
		mediaType = strings.ToLower(declaredType)
	}
	return strings.HasSuffix(mediaType, "pdf")
}

// displayName is the file name without directory or extension, shown while
// the upload is in flight
func displayName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// statusText describes a session for the progress bar
func statusText(s *SessionView) string {
	switch {
	case s == nil:
		return "Select PDF to Start"
	case s.Error != "":
		return s.Name
	case s.PageCount == 0 && s.UploadProgress < 1:
		return fmt.Sprintf("%s (uploading)", s.Name)
	case s.PageCount == 0:
		return fmt.Sprintf("%s (opening)", s.Name)
	case len(s.Pages) < s.PageCount:
		return fmt.Sprintf("%s (page %d of %d)", s.Name, len(s.Pages)+1, s.PageCount)
	default:
		return fmt.Sprintf("%s (%d pages)", s.Name, s.PageCount)
	}
}
