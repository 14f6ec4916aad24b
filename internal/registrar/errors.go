package registrar

import "errors"

var (
	errNoNodeinfoLink = errors.New("registrar: no nodeinfo link")
	errNoSoftwareName = errors.New("registrar: no software name in nodeinfo document")
	errBadStatus      = errors.New("registrar: unexpected HTTP status")
)
