package geometry

import "github.com/rotisserie/eris"

// ErrInvalidGeometry is returned for degenerate or self-intersecting rings.
// It is fatal to the single computation that received the geometry.
var ErrInvalidGeometry = eris.New("geometry: invalid geometry")

func invalidf(format string, args ...any) error {
	return eris.Wrapf(ErrInvalidGeometry, format, args...)
}

// IsInvalid reports whether err was caused by an invalid geometry.
func IsInvalid(err error) bool {
	return eris.Is(err, ErrInvalidGeometry)
}
