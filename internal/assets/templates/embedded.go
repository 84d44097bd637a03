// Package templatesassets provides the embedded descriptor templates.
package templatesassets

import _ "embed"

// JobTemplate is the default HTCondor job descriptor template.
//
//go:embed job.condor
var JobTemplate []byte
