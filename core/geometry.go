package core

import (
	"math"

	"github.com/signalsfoundry/firesat/model"
)

const (
	// EarthEquatorialRadiusM is the WGS84 semi-major axis in metres.
	EarthEquatorialRadiusM = 6378137.0
	// EarthPolarRadiusM is the WGS84 semi-minor axis in metres.
	EarthPolarRadiusM = 6356752.314245179
	// EarthMeanRadiusM is the radius of the spherical earth every geometry
	// calculation in this package is based on.
	EarthMeanRadiusM = (2*EarthEquatorialRadiusM + EarthPolarRadiusM) / 3
)

// Vec3 is an earth-centred, earth-fixed vector in metres.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// ToECEF places a geographic position on the spherical earth.
func ToECEF(p model.GeographicPosition) Vec3 {
	lat := radians(p.Latitude)
	lon := radians(p.Longitude)
	r := EarthMeanRadiusM + p.Altitude
	return Vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// FromECEF is the inverse of ToECEF. Longitude is normalised to (-180, 180].
func FromECEF(v Vec3) model.GeographicPosition {
	r := v.Norm()
	if r == 0 {
		return model.GeographicPosition{Altitude: -EarthMeanRadiusM}
	}
	return model.GeographicPosition{
		Latitude:  degrees(math.Asin(v.Z / r)),
		Longitude: degrees(math.Atan2(v.Y, v.X)),
		Altitude:  r - EarthMeanRadiusM,
	}
}

// MinElevation returns the minimum elevation angle (degrees) at which a
// target is still inside the sensor's field of regard for a satellite at the
// given altitude (metres). Geometrically impossible configurations, where the
// sensor cone is wider than the visible earth disk, yield 0.
func MinElevation(altitude, fieldOfRegard float64) float64 {
	if fieldOfRegard >= 180 {
		return 0
	}
	// eta: angular radius of the region viewable by the sensor
	sinEta := math.Sin(radians(fieldOfRegard / 2))
	// rho: angular radius of the earth seen from the satellite
	sinRho := EarthMeanRadiusM / (EarthMeanRadiusM + altitude)
	// epsilon: grazing elevation at the edge of the sensor cone
	cosEpsilon := sinEta / sinRho
	if cosEpsilon > 1 {
		return 0
	}
	return degrees(math.Acos(cosEpsilon))
}

// SensorRadius returns the ground radius (metres) of a nadir-pointing
// sensor's circular footprint at the given altitude (metres) and minimum
// elevation (degrees). A negative swath half-angle yields 0.
func SensorRadius(altitude, minElevation float64) float64 {
	sinRho := EarthMeanRadiusM / (EarthMeanRadiusM + altitude)
	// nadir angle between the sub-satellite point and the footprint edge
	eta := degrees(math.Asin(math.Cos(radians(minElevation)) * sinRho))
	halfAngle := 90 - eta - minElevation
	if halfAngle < 0 {
		return 0
	}
	return EarthMeanRadiusM * radians(halfAngle)
}

// ElevationAngle returns the elevation (degrees) of target above the local
// horizon of observer. 0° is the geometric horizon, 90° is overhead and
// negative values are below the horizon.
func ElevationAngle(observer, target model.GeographicPosition) float64 {
	return ElevationDegrees(ToECEF(observer), ToECEF(target))
}

// ElevationDegrees is ElevationAngle for ECEF vectors.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	// Local zenith at the observer is its normalised position vector.
	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := Vec3{X: observer.X / r, Y: observer.Y / r, Z: observer.Z / r}

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}

	// Elevation is measured from the local horizon (90° − zenith angle).
	return 90.0 - degrees(math.Acos(cosGamma))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
