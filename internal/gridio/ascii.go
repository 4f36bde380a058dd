// Package gridio reads and writes ESRI ASCII grids (.asc).
package gridio

import (
	"bufio"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/suitability-cli/internal/raster"
)

// DefaultNodata is written for cells without a value when the grid's own
// nodata value is not finite.
const DefaultNodata = -9999.0

// DefaultMaxCells caps ncols*nrows when the caller passes no limit. At 8
// bytes per cell it bounds a single grid to 2 GiB.
const DefaultMaxCells = 1 << 28

type header struct {
	ncols, nrows int
	x, y         float64
	xCenter      bool
	yCenter      bool
	dx, dy       float64
	nodata       float64
	seen         map[string]bool
}

// Read decodes an ASCII grid. crs is assigned to the result since the
// format does not carry one. Headers declaring more than maxCells cells are
// rejected before any allocation; maxCells <= 0 means DefaultMaxCells.
func Read(r io.Reader, crs string, maxCells int) (*raster.Grid, error) {
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	h, first, err := readHeader(sc, maxCells)
	if err != nil {
		return nil, err
	}

	t := raster.Transform{
		OriginX:    h.x,
		CellWidth:  h.dx,
		OriginY:    h.y + float64(h.nrows)*h.dy,
		CellHeight: -h.dy,
	}
	if h.xCenter {
		t.OriginX -= h.dx / 2
	}
	if h.yCenter {
		t.OriginY -= h.dy / 2
	}

	g := raster.Filled(h.ncols, h.nrows, t, crs, h.nodata, h.nodata)
	n, total := 0, h.ncols*h.nrows
	tok, ok := first, first != ""
	for ok {
		if n == total {
			return nil, eris.Errorf("gridio: more than %d values", total)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, eris.Errorf("gridio: value %d: %q is not a number", n, tok)
		}
		g.Set(n/h.ncols, n%h.ncols, v)
		n++
		ok = sc.Scan()
		tok = sc.Text()
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "gridio: read values")
	}
	if n != total {
		return nil, eris.Errorf("gridio: got %d values, want %d", n, total)
	}
	return g, nil
}

// readHeader consumes key/value pairs until the first data token, which
// it returns.
func readHeader(sc *bufio.Scanner, maxCells int) (*header, string, error) {
	h := &header{nodata: DefaultNodata, seen: make(map[string]bool)}
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			if err := h.validate(maxCells); err != nil {
				return nil, "", err
			}
			return h, sc.Text(), nil
		}
		if !sc.Scan() {
			return nil, "", eris.Errorf("gridio: header key %q has no value", key)
		}
		val := sc.Text()
		if err := h.set(key, val); err != nil {
			return nil, "", err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, "", eris.Wrap(err, "gridio: read header")
	}
	if err := h.validate(maxCells); err != nil {
		return nil, "", err
	}
	return h, "", nil
}

func (h *header) set(key, val string) error {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return eris.Errorf("gridio: header %s: %q is not a number", key, val)
	}
	switch key {
	case "ncols", "nrows":
		if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
			return eris.Errorf("gridio: header %s must be a positive integer, got %q", key, val)
		}
		if key == "ncols" {
			h.ncols = int(f)
		} else {
			h.nrows = int(f)
		}
	case "xllcorner":
		h.x = f
	case "xllcenter":
		h.x, h.xCenter = f, true
	case "yllcorner":
		h.y = f
	case "yllcenter":
		h.y, h.yCenter = f, true
	case "cellsize":
		h.dx, h.dy = f, f
	case "dx":
		h.dx = f
	case "dy":
		h.dy = f
	case "nodata_value":
		h.nodata = f
	default:
		return eris.Errorf("gridio: unknown header key %q", key)
	}
	h.seen[key] = true
	return nil
}

func (h *header) validate(maxCells int) error {
	if h.ncols <= 0 || h.nrows <= 0 {
		return eris.Errorf("gridio: ncols and nrows must be positive, got %d x %d", h.ncols, h.nrows)
	}
	if h.ncols > maxCells/h.nrows {
		return eris.Errorf("gridio: %d x %d grid exceeds the %d cell limit", h.ncols, h.nrows, maxCells)
	}
	if !(h.seen["xllcorner"] || h.seen["xllcenter"]) || !(h.seen["yllcorner"] || h.seen["yllcenter"]) {
		return eris.New("gridio: header needs xllcorner|xllcenter and yllcorner|yllcenter")
	}
	if h.dx <= 0 || h.dy <= 0 {
		return eris.New("gridio: cell size must be positive")
	}
	return nil
}

// Write encodes g as an ASCII grid. Cells g considers nodata are written as
// g.Nodata, or DefaultNodata when g.Nodata is NaN or infinite.
func Write(w io.Writer, g *raster.Grid) error {
	t := g.Transform
	if t.CellWidth <= 0 || t.CellHeight >= 0 {
		return eris.New("gridio: only north-up grids can be written")
	}
	nodata := g.Nodata
	if math.IsNaN(nodata) || math.IsInf(nodata, 0) {
		nodata = DefaultNodata
	}

	bw := bufio.NewWriter(w)
	fmtF := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	ext := g.Extent()

	var hdr strings.Builder
	hdr.WriteString("ncols " + strconv.Itoa(g.Width) + "\n")
	hdr.WriteString("nrows " + strconv.Itoa(g.Height) + "\n")
	hdr.WriteString("xllcorner " + fmtF(ext.MinX) + "\n")
	hdr.WriteString("yllcorner " + fmtF(ext.MinY) + "\n")
	if t.CellWidth == -t.CellHeight {
		hdr.WriteString("cellsize " + fmtF(t.CellWidth) + "\n")
	} else {
		hdr.WriteString("dx " + fmtF(t.CellWidth) + "\n")
		hdr.WriteString("dy " + fmtF(-t.CellHeight) + "\n")
	}
	hdr.WriteString("NODATA_value " + fmtF(nodata) + "\n")
	if _, err := bw.WriteString(hdr.String()); err != nil {
		return eris.Wrap(err, "gridio: write header")
	}

	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			v := g.At(r, c)
			if g.IsNodata(v) {
				v = nodata
			}
			if c > 0 {
				bw.WriteByte(' ') //nolint:errcheck
			}
			bw.WriteString(fmtF(v)) //nolint:errcheck
		}
		if err := bw.WriteByte('\n'); err != nil {
			return eris.Wrapf(err, "gridio: write row %d", r)
		}
	}
	return eris.Wrap(bw.Flush(), "gridio: flush")
}

// ReadFile reads an ASCII grid from disk. A sibling .prj file holding an
// "EPSG:" code or PROJ string overrides defaultCRS.
func ReadFile(path, defaultCRS string, maxCells int) (*raster.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gridio: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	crs := sidecarCRS(path, defaultCRS)
	g, err := Read(f, crs, maxCells)
	if err != nil {
		return nil, eris.Wrapf(err, "gridio: read %s", path)
	}
	zap.L().Debug("gridio: grid loaded",
		zap.String("path", path),
		zap.Int("width", g.Width),
		zap.Int("height", g.Height),
		zap.String("crs", g.CRS),
	)
	return g, nil
}

// WriteFile writes g to path, replacing any existing file.
func WriteFile(path string, g *raster.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "gridio: create %s", path)
	}
	if err := Write(f, g); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "gridio: write %s", path)
	}
	return eris.Wrapf(f.Close(), "gridio: close %s", path)
}

func sidecarCRS(path, fallback string) string {
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		return fallback
	}
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(strings.ToUpper(s), "EPSG:") || strings.HasPrefix(s, "+proj") {
		return s
	}
	return fallback
}
