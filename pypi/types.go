package pypi

// projectResponse is the subset of https://pypi.org/pypi/<name>/<version>/json used here.
type projectResponse struct {
	Info Info `json:"info"`
}

type Info struct {
	License           string   `json:"license"`
	LicenseExpression string   `json:"license_expression"`
	Summary           string   `json:"summary"`
	Classifiers       []string `json:"classifiers"`
}
