package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dpup/routereg/server/internal/lib/geo"
	"github.com/dpup/routereg/server/internal/lib/polyline"
	"github.com/dpup/routereg/server/internal/lib/snap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "snap":
		handleSnap()
	case "nearest-index":
		handleNearestIndex()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleSnap() {
	fs := flag.NewFlagSet("snap", flag.ExitOnError)
	encoded := fs.String("polyline", "", "Encoded route polyline")
	lat := fs.Float64("lat", 0, "Latitude of point to snap")
	lng := fs.Float64("lng", 0, "Longitude of point to snap")
	precision := fs.Float64("precision", snap.DefaultPrecisionMeters, "Snap tolerance in meters")

	fs.Parse(os.Args[2:])

	if *encoded == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-snapper snap --polyline '_p~iF~ps|U_ulLnnqC' --lat 38.59 --lng -120.7 --precision 50")
		os.Exit(1)
	}

	route, err := polyline.DecodeFlexible(*encoded)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	point := geo.Point{Latitude: *lat, Longitude: *lng}
	result, err := snap.Snap(point, route, *precision)
	if err != nil {
		log.Fatalf("Error snapping point: %v", err)
	}

	fmt.Printf("Snap result:\n")
	fmt.Printf("  Input point:   (%.6f, %.6f)\n", point.Latitude, point.Longitude)
	fmt.Printf("  Snapped point: (%.6f, %.6f)\n", result.SnappedPoint.Latitude, result.SnappedPoint.Longitude)
	fmt.Printf("  Distance:      %.2f meters\n", result.DistanceMeters)
	fmt.Printf("  Segment index: %d\n", result.SegmentIndex)
	fmt.Printf("  Snapped:       %v (tolerance %.1f m)\n", result.IsSnapped, *precision)
}

func handleNearestIndex() {
	fs := flag.NewFlagSet("nearest-index", flag.ExitOnError)
	encoded := fs.String("polyline", "", "Encoded route polyline")
	lat := fs.Float64("lat", 0, "Latitude of reference point")
	lng := fs.Float64("lng", 0, "Longitude of reference point")

	fs.Parse(os.Args[2:])

	if *encoded == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-snapper nearest-index --polyline '_p~iF~ps|U_ulLnnqC' --lat 38.59 --lng -120.7")
		os.Exit(1)
	}

	route, err := polyline.DecodeFlexible(*encoded)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	idx := snap.NearestIndex(geo.Point{Latitude: *lat, Longitude: *lng}, route)
	index, err := geo.NewDistanceIndex(route)
	if err != nil {
		log.Fatalf("Error building distance index: %v", err)
	}

	fmt.Printf("Nearest vertex:\n")
	fmt.Printf("  Index:    %d of %d\n", idx, len(route))
	fmt.Printf("  Vertex:   (%.6f, %.6f)\n", route[idx].Latitude, route[idx].Longitude)
	fmt.Printf("  Distance from route start: %.3f km (total %.3f km)\n",
		index.DistanceAtIndex(idx), index.TotalKm())
}

func printUsage() {
	fmt.Println("Usage: test-snapper <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  snap           Project a point onto a route within a precision tolerance")
	fmt.Println("  nearest-index  Find the route vertex closest to a point")
	fmt.Println("  help           Show this message")
}
