package pypi

import (
	"strings"

	"github.com/samber/lo"
)

const osiClassifierPrefix = "License :: OSI Approved :: "

// SelectLicense picks the license of a release. The license field wins unless it is empty
// or "UNKNOWN", then license_expression, then the first OSI Approved classifier.
func SelectLicense(info Info) string {
	if l := strings.TrimSpace(info.License); l != "" && l != "UNKNOWN" {
		return l
	}
	if l := strings.TrimSpace(info.LicenseExpression); l != "" {
		return l
	}
	classifier, ok := lo.Find(info.Classifiers, func(c string) bool {
		return strings.HasPrefix(c, osiClassifierPrefix)
	})
	if !ok {
		return ""
	}
	return strings.TrimPrefix(classifier, osiClassifierPrefix)
}
