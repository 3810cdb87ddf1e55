package gridmap

import (
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Metadata is the on-disk description of a grid map, in the common map_server
// YAML format.
type Metadata struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
}

// LoadMap reads map metadata from the given YAML file and the PGM image it
// references, classifies every cell against the occupancy thresholds, and
// returns the resulting Map. A relative image path is resolved against the
// directory of the metadata file.
func LoadMap(metaPath string) (*Map, error) {
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read map metadata")
	}
	var meta Metadata
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(err, "cannot parse map metadata")
	}
	if meta.Image == "" {
		return nil, errors.New("map metadata is missing an image")
	}
	imagePath := meta.Image
	if !filepath.IsAbs(imagePath) {
		imagePath = filepath.Join(filepath.Dir(metaPath), imagePath)
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open map image")
	}
	defer f.Close()
	gray, err := decodePGM(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode map image %q", imagePath)
	}

	origin := r3.Vector{}
	if len(meta.Origin) >= 2 {
		origin.X, origin.Y = meta.Origin[0], meta.Origin[1]
	}
	if len(meta.Origin) >= 3 {
		origin.Z = meta.Origin[2]
	}
	cfg := Config{
		Resolution:     meta.Resolution,
		Origin:         origin,
		OccupiedThresh: meta.OccupiedThresh,
		FreeThresh:     meta.FreeThresh,
		Reverse:        meta.Negate != 0,
	}
	return newMapFromGray(cfg, gray)
}

// newMapFromGray converts 8-bit grayscale intensities into normalized
// occupancy and classifies each cell against the thresholds. By convention
// darker pixels are more occupied unless the reverse flag is set.
func newMapFromGray(cfg Config, gray *mat.Dense) (*Map, error) {
	rows, cols := gray.Dims()
	occ := mat.NewDense(rows, cols, nil)
	cells := make([][]Cell, rows)
	for py := 0; py < rows; py++ {
		cells[py] = make([]Cell, cols)
		for px := 0; px < cols; px++ {
			v := gray.At(py, px)
			p := (255 - v) / 255
			if cfg.Reverse {
				p = v / 255
			}
			occ.Set(py, px, p)
			switch {
			case p > cfg.OccupiedThresh:
				cells[py][px] = CellObstacle
			case p < cfg.FreeThresh:
				cells[py][px] = CellFree
			default:
				cells[py][px] = CellUnknown
			}
		}
	}
	m, err := NewMap(cfg, cells)
	if err != nil {
		return nil, err
	}
	m.raw = occ
	return m, nil
}
