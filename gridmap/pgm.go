package gridmap

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// decodePGM reads a netpbm grayscale image in either the binary (P5) or ASCII
// (P2) variant, with a maximum value of at most 255.
func decodePGM(r io.Reader) (*mat.Dense, error) {
	br := bufio.NewReader(r)

	magic, err := nextPGMToken(br)
	if err != nil {
		return nil, err
	}
	if magic != "P5" && magic != "P2" {
		return nil, errors.Errorf("unsupported magic number %q", magic)
	}
	width, err := nextPGMInt(br)
	if err != nil {
		return nil, err
	}
	height, err := nextPGMInt(br)
	if err != nil {
		return nil, err
	}
	maxVal, err := nextPGMInt(br)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid dimensions %dx%d", width, height)
	}
	if maxVal <= 0 || maxVal > 255 {
		return nil, errors.Errorf("unsupported max value %d", maxVal)
	}

	data := make([]float64, width*height)
	if magic == "P5" {
		buf := make([]byte, width*height)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, errors.Wrap(err, "short pixel data")
		}
		for i, b := range buf {
			data[i] = float64(b)
		}
	} else {
		for i := range data {
			v, err := nextPGMInt(br)
			if err != nil {
				return nil, errors.Wrap(err, "short pixel data")
			}
			data[i] = float64(v)
		}
	}
	return mat.NewDense(height, width, data), nil
}

// nextPGMToken returns the next whitespace-delimited token, skipping
// '#' comments.
func nextPGMToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			return "", err
		}
		switch {
		case b == '#':
			if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
				return "", err
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}

func nextPGMInt(br *bufio.Reader) (int, error) {
	tok, err := nextPGMToken(br)
	if err != nil {
		return 0, err
	}
	v := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("malformed integer %q", tok)
		}
		v = v*10 + int(c-'0')
	}
	return v, nil
}
