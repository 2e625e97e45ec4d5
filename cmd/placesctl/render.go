package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mohammed-shakir/placefinder/pkg/mapview"
)

type jsonView struct {
	Center       mapview.Coordinates  `json:"center"`
	UserLocation *mapview.Coordinates `json:"user_location,omitempty"`
	Location     string               `json:"location"`
	LocationErr  string               `json:"location_error,omitempty"`
	Places       []mapview.Place      `json:"places"`
	Selected     *mapview.Place       `json:"selected,omitempty"`
}

func toJSONView(v mapview.ViewState) jsonView {
	out := jsonView{
		Center:       v.Center,
		UserLocation: v.UserLocation,
		Location:     v.Location.String(),
		Places:       v.Places,
		Selected:     v.Selected,
	}
	if out.Places == nil {
		out.Places = []mapview.Place{}
	}
	if v.LocationErr != nil {
		out.LocationErr = v.LocationErr.Error()
	}
	return out
}

// renderView prints the view as a table. Proximity results carry a distance
// column; the center-less listing does not.
func renderView(w io.Writer, v mapview.ViewState) error {
	loc := v.Location.String()
	if v.LocationErr != nil {
		loc += " (" + v.LocationErr.Error() + ")"
	}
	fmt.Fprintf(w, "center %s  location %s  %d places\n", v.Center, loc, len(v.Places))
	if len(v.Places) == 0 {
		return nil
	}

	withDist := v.UserLocation != nil
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if withDist {
		fmt.Fprintln(tw, "\tID\tNAME\tCATEGORY\tDISTANCE\tCITY")
	} else {
		fmt.Fprintln(tw, "\tID\tNAME\tCATEGORY\tCITY")
	}
	for _, p := range v.Places {
		mark := ""
		if v.Selected != nil && v.Selected.ID == p.ID {
			mark = "*"
		}
		if p.Verified {
			p.Name += " ✓"
		}
		if withDist {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", mark, p.ID, p.Name, p.Category, p.DistanceLabel, p.City)
		} else {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", mark, p.ID, p.Name, p.Category, p.City)
		}
	}
	return tw.Flush()
}
