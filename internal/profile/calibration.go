package profile

// Calibration maps sensor gray levels to world units:
// world = gray*Scale + World.
type Calibration struct {
	WorldX float64 // world offset of X, mm
	WorldZ float64 // world offset of Z, mm
	ScaleX float64 // mm per X gray level
	ScaleZ float64 // mm per Z gray level
}

// ToWorldX converts an X gray level to mm.
func (c Calibration) ToWorldX(v float64) float64 { return v*c.ScaleX + c.WorldX }

// ToWorldZ converts a Z gray level to mm.
func (c Calibration) ToWorldZ(v float64) float64 { return v*c.ScaleZ + c.WorldZ }

// WorldRange is the measuring field of a sensor in world units.
type WorldRange struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
}

// SizeX is the width of the measuring field.
func (r WorldRange) SizeX() float64 { return r.MaxX - r.MinX }

// SizeZ is the depth of the measuring field.
func (r WorldRange) SizeZ() float64 { return r.MaxZ - r.MinZ }
