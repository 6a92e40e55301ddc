// Package wcs implements the celestial part of the FITS world coordinate
// system: the linear pixel transform (CRPIX, CDELT, PC or CD) followed by a
// projection and the spherical rotation to right ascension and declination.
//
// Pixel coordinates passed to PixelToSky are 0-based array indices: x runs
// along NAXIS1, y along NAXIS2. FITS pixel coordinates are one larger.
//
// Supported projections are the zenithal SIN, TAN, ARC, STG and ZEA, the
// cylindrical CAR, and the AIPS legacy NCP used by older WSRT maps.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
)

// ErrOutOfDomain is returned for pixels the projection cannot invert
var ErrOutOfDomain = errors.New("wcs: pixel outside projection domain")

const (
	deg = math.Pi / 180
	rad = 180 / math.Pi
)

// Keywords looks up header cards; *fitsio.Header satisfies it
type Keywords interface {
	Get(name string) *fitsio.Card
}

// WCS is a pixel to sky transform for one pair of celestial axes
type WCS struct {
	proj string

	// 0-based pixel of the reference point, per celestial axis
	crpix [2]float64

	// reference point, degrees
	crval [2]float64

	// linear transform, degrees per pixel
	cd *mat.Dense

	// native longitude of the celestial pole, degrees
	lonPole float64
	latPole float64

	// celestial coordinates of the native pole, radians
	alphaP, deltaP float64
}

// FromHeader builds a transform from FITS header keywords. The celestial
// axes must be NAXIS1 (longitude) and NAXIS2 (latitude).
func FromHeader(h Keywords) (*WCS, error) {
	ctype1 := stringValue(h.Get("CTYPE1"))
	ctype2 := stringValue(h.Get("CTYPE2"))
	if ctype1 == "" || ctype2 == "" {
		return nil, fmt.Errorf("wcs: CTYPE1/CTYPE2 missing")
	}
	lonProj, ok1 := projectionCode(ctype1, "RA--", "GLON", "ELON")
	latProj, ok2 := projectionCode(ctype2, "DEC-", "GLAT", "ELAT")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("wcs: axes %q, %q are not longitude, latitude", ctype1, ctype2)
	}
	if lonProj != latProj {
		return nil, fmt.Errorf("wcs: mixed projections %s and %s", lonProj, latProj)
	}

	p := Params{
		Projection: lonProj,
		CRPix:      [2]float64{floatValue(h.Get("CRPIX1"), 0), floatValue(h.Get("CRPIX2"), 0)},
		CRVal:      [2]float64{floatValue(h.Get("CRVAL1"), 0), floatValue(h.Get("CRVAL2"), 0)},
		LonPole:    math.NaN(),
		LatPole:    math.NaN(),
	}
	if c := h.Get("LONPOLE"); c != nil {
		p.LonPole = floatValue(c, 0)
	}
	if c := h.Get("LATPOLE"); c != nil {
		p.LatPole = floatValue(c, 0)
	}

	if h.Get("CD1_1") != nil || h.Get("CD2_2") != nil {
		p.CD = [2][2]float64{
			{floatValue(h.Get("CD1_1"), 0), floatValue(h.Get("CD1_2"), 0)},
			{floatValue(h.Get("CD2_1"), 0), floatValue(h.Get("CD2_2"), 0)},
		}
	} else {
		cdelt := [2]float64{floatValue(h.Get("CDELT1"), 1), floatValue(h.Get("CDELT2"), 1)}
		pc := [2][2]float64{
			{floatValue(h.Get("PC1_1"), 1), floatValue(h.Get("PC1_2"), 0)},
			{floatValue(h.Get("PC2_1"), 0), floatValue(h.Get("PC2_2"), 1)},
		}
		// legacy AIPS rotation
		if crota := h.Get("CROTA2"); crota != nil && pc == [2][2]float64{{1, 0}, {0, 1}} {
			s, c := math.Sincos(floatValue(crota, 0) * deg)
			rho := cdelt[1] / cdelt[0]
			pc = [2][2]float64{{c, -s * rho}, {s / rho, c}}
		}
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				p.CD[i][j] = cdelt[i] * pc[i][j]
			}
		}
	}
	return New(p)
}

// Params are the keyword values of a celestial WCS. CRPix is in FITS
// (1-based) convention, angles in degrees. A NaN LonPole or LatPole selects
// the default.
type Params struct {
	Projection string
	CRPix      [2]float64
	CRVal      [2]float64
	CD         [2][2]float64
	LonPole    float64
	LatPole    float64
}

// New builds a transform from explicit parameters
func New(p Params) (*WCS, error) {
	proj := strings.ToUpper(strings.TrimSpace(p.Projection))
	theta0 := 90.0
	switch proj {
	case "SIN", "TAN", "ARC", "STG", "ZEA", "NCP":
	case "CAR":
		theta0 = 0
	default:
		return nil, fmt.Errorf("wcs: unsupported projection %q", p.Projection)
	}

	cd := mat.NewDense(2, 2, []float64{p.CD[0][0], p.CD[0][1], p.CD[1][0], p.CD[1][1]})
	if mat.Det(cd) == 0 {
		return nil, fmt.Errorf("wcs: singular CD matrix")
	}

	w := &WCS{
		proj:    proj,
		crpix:   [2]float64{p.CRPix[0] - 1, p.CRPix[1] - 1},
		crval:   p.CRVal,
		cd:      cd,
		lonPole: p.LonPole,
		latPole: p.LatPole,
	}
	if math.IsNaN(w.lonPole) {
		if p.CRVal[1] >= theta0 {
			w.lonPole = 0
		} else {
			w.lonPole = 180
		}
	}
	if math.IsNaN(w.latPole) {
		w.latPole = 90
	}

	if theta0 == 90 {
		w.alphaP = p.CRVal[0] * deg
		w.deltaP = p.CRVal[1] * deg
	} else {
		w.alphaP, w.deltaP = nativePole(p.CRVal[0]*deg, p.CRVal[1]*deg, 0, theta0*deg, w.lonPole*deg, w.latPole*deg)
	}
	return w, nil
}

// Projection returns the three letter projection code
func (w *WCS) Projection() string {
	return w.proj
}

// PixelToSky converts a 0-based pixel position to right ascension and
// declination. RA is normalized to [0, 2π).
func (w *WCS) PixelToSky(x, y float64) (ra, dec unit.Angle, err error) {
	offset := mat.NewVecDense(2, []float64{x - w.crpix[0], y - w.crpix[1]})
	var inter mat.VecDense
	inter.MulVec(w.cd, offset)
	ix, iy := inter.AtVec(0), inter.AtVec(1)

	var a, d float64
	if w.proj == "NCP" {
		a, d, err = w.ncp(ix*deg, iy*deg)
	} else {
		var phi, theta float64
		phi, theta, err = w.native(ix, iy)
		if err == nil {
			a, d = w.rotate(phi, theta)
		}
	}
	if err != nil {
		return 0, 0, err
	}
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return unit.Angle(a), unit.Angle(d), nil
}

// native deprojects intermediate world coordinates (degrees) to native
// spherical coordinates (radians).
func (w *WCS) native(x, y float64) (phi, theta float64, err error) {
	if w.proj == "CAR" {
		return x * deg, y * deg, nil
	}

	r := math.Hypot(x, y)
	if r == 0 {
		phi = 0
	} else {
		phi = math.Atan2(x, -y)
	}
	switch w.proj {
	case "SIN":
		s := r * deg
		if s > 1 {
			return 0, 0, ErrOutOfDomain
		}
		theta = math.Acos(s)
	case "TAN":
		theta = math.Atan2(rad, r)
	case "ARC":
		theta = (90 - r) * deg
		if theta < -math.Pi/2 {
			return 0, 0, ErrOutOfDomain
		}
	case "STG":
		theta = math.Pi/2 - 2*math.Atan(r*deg/2)
	case "ZEA":
		s := r * deg / 2
		if s > 1 {
			return 0, 0, ErrOutOfDomain
		}
		theta = math.Pi/2 - 2*math.Asin(s)
	}
	return phi, theta, nil
}

// rotate converts native (phi, theta) to celestial coordinates
func (w *WCS) rotate(phi, theta float64) (alpha, delta float64) {
	sdp, cdp := math.Sincos(w.deltaP)
	st, ct := math.Sincos(theta)
	dphi := phi - w.lonPole*deg
	sdphi, cdphi := math.Sincos(dphi)

	alpha = w.alphaP + math.Atan2(-ct*sdphi, st*cdp-ct*sdp*cdphi)
	s := st*sdp + ct*cdp*cdphi
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	delta = math.Asin(s)
	return alpha, delta
}

// ncp applies the AIPS north celestial pole projection; l and m in radians
func (w *WCS) ncp(l, m float64) (alpha, delta float64, err error) {
	a0, d0 := w.crval[0]*deg, w.crval[1]*deg
	if d0 == 0 {
		return 0, 0, fmt.Errorf("wcs: NCP undefined at zero declination")
	}
	sd0, cd0 := math.Sincos(d0)
	t := cd0 - m*sd0
	da := math.Atan2(l, t)
	c := t / math.Cos(da)
	if c > 1 || c < -1 {
		return 0, 0, ErrOutOfDomain
	}
	delta = math.Acos(c)
	if d0 < 0 {
		delta = -delta
	}
	return a0 + da, delta, nil
}

// nativePole finds the celestial coordinates of the native pole for a
// non-zenithal projection, choosing the solution nearest LATPOLE.
func nativePole(alpha0, delta0, phi0, theta0, phiP, latPole float64) (alphaP, deltaP float64) {
	sd0, cd0 := math.Sincos(delta0)
	st0, ct0 := math.Sincos(theta0)
	dphi := phiP - phi0
	sdphi, cdphi := math.Sincos(dphi)

	base := math.Atan2(st0, ct0*cdphi)
	arg := sd0 / math.Sqrt(1-ct0*ct0*sdphi*sdphi)
	if arg > 1 {
		arg = 1
	} else if arg < -1 {
		arg = -1
	}
	spread := math.Acos(arg)
	deltaP = base + spread
	alt := base - spread
	if math.Abs(alt-latPole) < math.Abs(deltaP-latPole) && math.Abs(alt) <= math.Pi/2 {
		deltaP = alt
	}
	if math.Abs(deltaP) > math.Pi/2 {
		deltaP = alt
	}

	const eps = 1e-12
	switch {
	case math.Abs(deltaP-math.Pi/2) < eps:
		alphaP = alpha0 + dphi - math.Pi
	case math.Abs(deltaP+math.Pi/2) < eps:
		alphaP = alpha0 - dphi
	default:
		sdp, cdp := math.Sincos(deltaP)
		alphaP = alpha0 - math.Atan2(sdphi*ct0/cd0, (st0-sdp*sd0)/(cdp*cd0))
	}
	return alphaP, deltaP
}

// projectionCode extracts the projection from a CTYPE like "RA---SIN"
func projectionCode(ctype string, prefixes ...string) (string, bool) {
	ctype = strings.ToUpper(strings.TrimSpace(ctype))
	for _, p := range prefixes {
		if strings.HasPrefix(ctype, p) {
			if len(ctype) < 8 {
				return "", false
			}
			return strings.TrimSpace(ctype[5:8]), true
		}
	}
	return "", false
}

func stringValue(c *fitsio.Card) string {
	if c == nil {
		return ""
	}
	if s, ok := c.Value.(string); ok {
		return s
	}
	return fmt.Sprint(c.Value)
}

func floatValue(c *fitsio.Card, def float64) float64 {
	if c == nil {
		return def
	}
	switch v := c.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}
