package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/variantdev/reml/pkg/config"
	"github.com/variantdev/reml/pkg/project"
	"github.com/variantdev/reml/pkg/release"
)

// Diagnose turns the error ending a run into the message shown to the operator.
func Diagnose(err error) string {
	var (
		series    *release.InvalidReleaseSeriesError
		typ       *release.InvalidReleaseTypeError
		rebuild   *release.InvalidReleaseRebuildOptionError
		aborted   *release.AbortedReleaseError
		file      *config.MissingConfigurationError
		attribute *config.MissingConfigurationAttributeError
		unknown   *project.UnknownProjectError
	)

	switch {
	case errors.As(err, &series):
		return fmt.Sprintf("Invalid release series `%s` for %s", series.Series, series.Project)
	case errors.As(err, &typ):
		return "A new release series must start with a release candidate"
	case errors.As(err, &rebuild):
		return fmt.Sprintf("Cannot rebuild: branch `%s` does not exist", rebuild.Branch)
	case errors.As(err, &aborted):
		return "Release aborted: " + aborted.Reason
	case errors.As(err, &file):
		return "Configuration file not found at " + file.Path
	case errors.As(err, &attribute):
		return fmt.Sprintf("Missing `%s` in configuration of %s", attribute.Attribute, attribute.Project)
	case errors.As(err, &unknown):
		return fmt.Sprintf("Unknown project `%s`: must be one of %s", unknown.Name, strings.Join(unknown.Known, ", "))
	}

	return "Error: " + err.Error()
}
