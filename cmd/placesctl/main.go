// Command placesctl is the operator and terminal client for placesd.
//
//	placesctl token [-sub name]
//	placesctl nearby [-api url] [-lat x -lng y] [-radius m] [-category c] [-select id] [-json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/placefinder/internal/auth"
	"github.com/mohammed-shakir/placefinder/internal/core/config"
	"github.com/mohammed-shakir/placefinder/internal/core/httpclient"
	"github.com/mohammed-shakir/placefinder/internal/logger"
	"github.com/mohammed-shakir/placefinder/pkg/mapview"
)

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "token":
		err = cmdToken(os.Args[2:], os.Stdout)
	case "nearby":
		err = cmdNearby(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "placesctl:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: placesctl <token|nearby> [flags]")
}

// cmdToken mints an admin bearer token from JWT_SECRET and JWT_TTL.
func cmdToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "operator", "token subject")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := config.FromEnv()
	if !cfg.AdminEnabled() {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	j, err := auth.NewJWT(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	if err != nil {
		return err
	}
	tok, err := j.Issue(*sub)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func cmdNearby(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("nearby", flag.ContinueOnError)
	api := fs.String("api", envOr("PLACEFINDER_API", "http://localhost:8090"), "placesd base URL")
	lat := fs.Float64("lat", math.NaN(), "your latitude (omit to list without a location)")
	lng := fs.Float64("lng", math.NaN(), "your longitude")
	radius := fs.Int("radius", 0, "search radius in meters (0 = server default)")
	category := fs.String("category", "", "restaurant or mosque")
	sel := fs.Int64("select", 0, "place id to select after the search")
	asJSON := fs.Bool("json", false, "print the view as JSON")
	timeout := fs.Duration("timeout", 15*time.Second, "overall timeout")
	verbose := fs.Bool("v", false, "log state transitions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	zl := logger.Build(logger.Config{Level: level, Console: true, Component: "placesctl"}, os.Stderr)
	log := logger.NewSlog(&zl)

	var geo mapview.Geolocator = mapview.GeolocatorFunc(func(context.Context) (mapview.Coordinates, error) {
		return mapview.Coordinates{}, mapview.ErrLocationDenied
	})
	if !math.IsNaN(*lat) && !math.IsNaN(*lng) {
		geo = mapview.Fixed(mapview.Coordinates{Lat: *lat, Lng: *lng})
	}

	client := httpclient.NewOutbound(httpclient.WithTimeout(*timeout))
	ctl := mapview.New(
		mapview.NewHTTPSearcher(*api, client),
		geo,
		mapview.WithFilters(mapview.Filters{Category: *category, RadiusM: *radius}),
		mapview.WithLogger(log),
	)
	defer ctl.Close()

	select {
	case <-ctl.Locate():
	case <-time.After(*timeout):
		return fmt.Errorf("no result within %s", *timeout)
	}
	if *sel != 0 && !ctl.SelectPlace(*sel) {
		fmt.Fprintf(os.Stderr, "place %d is not in the result set\n", *sel)
	}

	v := ctl.Snapshot()
	if v.SearchErr != nil {
		return v.SearchErr
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(toJSONView(v))
	}
	return renderView(out, v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
