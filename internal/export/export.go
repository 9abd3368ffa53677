// Package export writes detection layers to zip archives.
//
// Each archive holds one JSON document per layer, named <layer id>.json, with
// the layer's geometry in scene pixels, its style and its attributes.
package export

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aero-vision/internal/layers"
	"aero-vision/pkg/geometry"
)

// FormatVersion is written into every document.
const FormatVersion = 1

// ErrNoLayers is returned when an archive would be empty.
var ErrNoLayers = errors.New("no layers to export")

// Geometry is a GeoJSON-style polygon in scene pixel coordinates (top-left
// origin). The ring is closed: the first vertex is repeated at the end.
type Geometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Document is the JSON body written for one layer.
type Document struct {
	Version    int            `json:"version"`
	Exported   time.Time      `json:"exported"`
	Source     string         `json:"source,omitempty"` // image path relative to the archive
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ZOrder     int            `json:"z_order"`
	Style      layers.Style   `json:"style"`
	Geometry   Geometry       `json:"geometry"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// NewDocument builds the export document for a layer snapshot.
func NewDocument(l layers.VectorLayer) Document {
	ring := make([][2]float64, 0, len(l.Geometry)+1)
	for _, p := range l.Geometry {
		ring = append(ring, [2]float64{p.X, p.Y})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return Document{
		Version:    FormatVersion,
		Exported:   time.Now().UTC(),
		ID:         l.ID,
		Name:       l.Name,
		ZOrder:     l.ZOrder,
		Style:      l.Style,
		Geometry:   Geometry{Type: "Polygon", Coordinates: [][][2]float64{ring}},
		Attributes: l.Attributes,
	}
}

// Polygon returns the document geometry without the closing vertex.
func (d Document) Polygon() geometry.Polygon {
	if len(d.Geometry.Coordinates) == 0 {
		return nil
	}
	ring := d.Geometry.Coordinates[0]
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	poly := make(geometry.Polygon, len(ring))
	for i, c := range ring {
		poly[i] = geometry.NewPoint2D(c[0], c[1])
	}
	return poly
}

// SetSource records the image path relative to the archive directory.
func (d *Document) SetSource(archivePath, imagePath string) {
	if imagePath == "" {
		return
	}
	rel, err := filepath.Rel(filepath.Dir(archivePath), imagePath)
	if err != nil {
		d.Source = imagePath
	} else {
		d.Source = filepath.ToSlash(rel)
	}
}

// DefaultFileName returns the archive name offered for a layer.
func DefaultFileName(l layers.VectorLayer) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, l.Name)
	if name == "" {
		name = l.ID
	}
	return name + ".zip"
}

// WriteLayer writes a single-layer archive to path.
func WriteLayer(path, imagePath string, l layers.VectorLayer) error {
	return WriteLayers(path, imagePath, []layers.VectorLayer{l})
}

// WriteLayers writes every layer into one archive at path. The file is
// written to a temporary name and renamed into place.
func WriteLayers(path, imagePath string, ls []layers.VectorLayer) error {
	if len(ls) == 0 {
		return ErrNoLayers
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp, path, imagePath, ls); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

func write(w io.Writer, archivePath, imagePath string, ls []layers.VectorLayer) error {
	zw := zip.NewWriter(w)
	for _, l := range ls {
		doc := NewDocument(l)
		doc.SetSource(archivePath, imagePath)

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode layer %s: %w", l.ID, err)
		}
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     l.ID + ".json",
			Method:   zip.Deflate,
			Modified: doc.Exported,
		})
		if err != nil {
			return fmt.Errorf("failed to add layer %s: %w", l.ID, err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("failed to write layer %s: %w", l.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// ReadArchive returns the documents stored in the archive at path, in
// archive order.
func ReadArchive(path string) ([]Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var docs []Document
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".json") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		var doc Document
		err = json.NewDecoder(rc).Decode(&doc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", f.Name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
