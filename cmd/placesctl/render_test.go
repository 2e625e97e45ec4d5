package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mohammed-shakir/placefinder/pkg/mapview"
)

func TestRenderView_Proximity(t *testing.T) {
	d := 5.0
	user := mapview.Coordinates{Lat: 41.7151, Lng: 44.8271}
	places := []mapview.Place{
		{ID: 1, Name: "Fabrika", Category: "restaurant", DistanceM: &d, DistanceLabel: "5 m", Verified: true},
		{ID: 2, Name: "Jumah", Category: "mosque", DistanceLabel: "1.2 km"},
	}
	v := mapview.ViewState{
		Center:       user,
		UserLocation: &user,
		Places:       places,
		Selected:     &places[1],
		Location:     mapview.Located,
	}

	var buf bytes.Buffer
	if err := renderView(&buf, v); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"DISTANCE", "5 m", "1.2 km", "Fabrika ✓", "location located", "2 places"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[len(lines)-1], "*") {
		t.Fatalf("selected row not marked:\n%s", out)
	}
}

func TestRenderView_ListingAfterDenied(t *testing.T) {
	v := mapview.ViewState{
		Center:      mapview.DefaultCenter,
		Places:      []mapview.Place{{ID: 3, Name: "Barbarestan", Category: "restaurant"}},
		Location:    mapview.Denied,
		LocationErr: mapview.ErrLocationDenied,
	}
	var buf bytes.Buffer
	if err := renderView(&buf, v); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "DISTANCE") {
		t.Fatalf("listing must not show distances:\n%s", out)
	}
	if !strings.Contains(out, "denied (location permission denied)") {
		t.Fatalf("location error not shown:\n%s", out)
	}
}

func TestToJSONView(t *testing.T) {
	j := toJSONView(mapview.ViewState{Location: mapview.TimedOut, LocationErr: mapview.ErrLocationTimedOut})
	if j.Places == nil || j.Location != "timed_out" || j.LocationErr == "" {
		t.Fatalf("json view = %+v", j)
	}
}

func TestCmdToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	var buf bytes.Buffer
	if err := cmdToken([]string{"-sub", "ops"}, &buf); err != nil {
		t.Fatal(err)
	}
	if strings.Count(strings.TrimSpace(buf.String()), ".") != 2 {
		t.Fatalf("not a JWT: %q", buf.String())
	}

	t.Setenv("JWT_SECRET", "")
	if err := cmdToken(nil, &buf); err == nil {
		t.Fatal("expected error without secret")
	}
}
