package constants

import "strings"

// DefaultInputFile is the workbook the batch entry point operates on when no path is given.
const DefaultInputFile = "embarques.xlsx"

// AllowedExtensions holds the workbook extensions accepted by the upload form.
var AllowedExtensions = map[string]struct{}{
	"xlsx": {},
	"xlsm": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a file extension (with or without the dot) is an accepted workbook.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
