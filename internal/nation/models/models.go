package models

import (
	"strings"
	"time"
)

// UnknownRegion is shown when a nation's region is not known.
const UnknownRegion = "Unknown Region"

// FlagURLBase is where the game serves flag images referenced by bare file names.
const FlagURLBase = "https://www.nationstates.net/images/flags/"

// Entry is a cached copy of a nation's display metadata, keyed by name.
type Entry struct {
	Name      string
	FlagURL   string
	Region    string
	UpdatedAt time.Time
}

// DisplayData is the enrichment shown next to a signature.
type DisplayData struct {
	FlagURL string `json:"flag_url"`
	Region  string `json:"region"`
}

// Display returns the entry's display data with the region defaulted.
func (e Entry) Display() DisplayData {
	return DisplayData{FlagURL: e.FlagURL, Region: RegionOrUnknown(e.Region)}
}

// UnknownDisplay is used for nations with no cache entry.
func UnknownDisplay() DisplayData {
	return DisplayData{Region: UnknownRegion}
}

// RegionOrUnknown defaults a blank region to UnknownRegion.
func RegionOrUnknown(region string) string {
	if r := strings.TrimSpace(region); r != "" {
		return r
	}
	return UnknownRegion
}

// FlagURL turns the flag value found in API responses and dumps into an
// absolute URL. Absolute values pass through; bare file names are resolved
// against FlagURLBase; codes without an extension get ".svg".
func FlagURL(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if strings.HasPrefix(code, "http://") || strings.HasPrefix(code, "https://") {
		return code
	}
	code = strings.TrimPrefix(code, "/")
	if !strings.Contains(code, ".") {
		code += ".svg"
	}
	return FlagURLBase + code
}
