package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ServiceImagePath is where an offering's image upload lands.
func ServiceImagePath(serviceID, uploadID, fileName string) (string, error) {
	serviceID = strings.TrimSpace(serviceID)
	uploadID = strings.TrimSpace(uploadID)
	if serviceID == "" || uploadID == "" {
		return "", fmt.Errorf("storage: service id and upload id are required")
	}
	name := cleanFileName(fileName)
	if name == "" {
		name = "image"
	}
	return path.Join("services", serviceID, uploadID, name), nil
}

// SalesExportPath is exports/sales/{yyyy}/{mm}/{id}.csv in UTC.
func SalesExportPath(at time.Time, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("storage: export id is required")
	}
	at = at.UTC()
	return fmt.Sprintf("exports/sales/%04d/%02d/%s.csv", at.Year(), int(at.Month()), cleanFileName(id)), nil
}

func cleanFileName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-")
}
