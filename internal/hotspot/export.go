package hotspot

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

var exportHeader = []string{
	"id", "created_at", "order_count", "surge_multiplier",
	"center_lon", "center_lat", "area_deg2", "wkt",
}

// Workbook builds a one-sheet report of hotspots.
func Workbook(hs []Hotspot) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Hotspots")
	if err != nil {
		return nil, eris.Wrap(err, "hotspot: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}

	for _, h := range hs {
		ring := geometry.RingPoints(h.Geom, 0)
		hull := geometry.Hull{Vertices: ring}
		c := geometry.Centroid(ring)
		wkt, err := geometry.FormatWKT(h.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "hotspot: format %d", h.ID)
		}

		row := sheet.AddRow()
		row.AddCell().SetInt64(h.ID)
		row.AddCell().SetString(h.CreatedAt.UTC().Format(time.RFC3339))
		row.AddCell().SetInt(h.OrderCount)
		row.AddCell().SetFloat(h.SurgeMultiplier)
		row.AddCell().SetFloat(c.Lon)
		row.AddCell().SetFloat(c.Lat)
		row.AddCell().SetFloat(hull.Area())
		row.AddCell().SetString(wkt)
	}
	return f, nil
}

// WriteXLSX writes the hotspot report to w.
func WriteXLSX(w io.Writer, hs []Hotspot) error {
	f, err := Workbook(hs)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "hotspot: write xlsx")
}

// SaveXLSX writes the hotspot report to path.
func SaveXLSX(path string, hs []Hotspot) error {
	f, err := Workbook(hs)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "hotspot: save %s", path)
}
