package segmentation

import (
	"errors"

	"github.com/Faultbox/instructmesh/internal/network"
)

var (
	// ErrRemoteUnavailable means the backend could not be reached.
	ErrRemoteUnavailable = network.ErrUnavailable

	// ErrSegmentTooSmall means the backend rejected a degenerate mask.
	ErrSegmentTooSmall = network.ErrSegmentTooSmall

	// ErrNoModelLoaded is returned when segmentation is requested before a
	// generation exists. It never reaches the backend.
	ErrNoModelLoaded = errors.New("no model loaded")

	// ErrBusy is returned while a load or segment request is in flight.
	ErrBusy = errors.New("segmentation request in flight")

	// ErrNotEnabled is returned for clicks outside an enabled session.
	ErrNotEnabled = errors.New("segmentation not enabled")

	// errStaleResponse marks completions from a superseded epoch or model.
	errStaleResponse = errors.New("stale response")
)
