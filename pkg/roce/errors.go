package roce

import "errors"

var (
	// ErrTruncated is returned when a buffer is shorter than the layer it should hold.
	ErrTruncated = errors.New("roce: truncated layer")
	// ErrFieldOverflow is returned when a field value does not fit its wire width.
	ErrFieldOverflow = errors.New("roce: field value overflows its width")
	// ErrDuplicateRoute is returned when a dispatch table has two routes for one selector.
	ErrDuplicateRoute = errors.New("roce: duplicate dispatch route")
	// ErrUnsupportedLayer is returned when a packet holds a layer it cannot copy.
	ErrUnsupportedLayer = errors.New("roce: unsupported layer type")
)
