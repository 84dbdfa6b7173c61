package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dpup/routereg/server/internal/lib/geo"
	"github.com/dpup/routereg/server/internal/lib/polyline"
	"github.com/dpup/routereg/server/internal/lib/segment"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "by-distance":
		handleByDistance()
	case "by-cuts":
		handleByCuts()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleByDistance() {
	fs := flag.NewFlagSet("by-distance", flag.ExitOnError)
	encoded := fs.String("polyline", "", "Encoded route polyline")
	distanceKm := fs.Float64("distance", 0, "Segment interval in kilometers")

	fs.Parse(os.Args[2:])

	if *encoded == "" || *distanceKm <= 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-segmenter by-distance --polyline '_p~iF~ps|U_ulLnnqC' --distance 5.0")
		os.Exit(1)
	}

	builder := buildFromPolyline(*encoded)
	segments, err := builder.ByDistance(*distanceKm)
	if err != nil {
		log.Fatalf("Error building segments: %v", err)
	}
	printSegments(segments, builder.TotalKm())
}

func handleByCuts() {
	fs := flag.NewFlagSet("by-cuts", flag.ExitOnError)
	encoded := fs.String("polyline", "", "Encoded route polyline")
	cuts := fs.String("cuts", "", "Comma-separated cut distances in km, e.g. 4.0,9.0")

	fs.Parse(os.Args[2:])

	if *encoded == "" || *cuts == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-segmenter by-cuts --polyline '_p~iF~ps|U_ulLnnqC' --cuts 4.0,9.0")
		os.Exit(1)
	}

	builder := buildFromPolyline(*encoded)
	route, err := polyline.DecodeFlexible(*encoded)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}
	index, err := geo.NewDistanceIndex(route)
	if err != nil {
		log.Fatalf("Error building distance index: %v", err)
	}

	var cutPoints []segment.CutPoint
	for _, field := range strings.Split(*cuts, ",") {
		km, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			log.Fatalf("Invalid cut distance %q: %v", field, err)
		}
		cutPoints = append(cutPoints, segment.NewCutPoint(index.PointAtDistance(km), km))
	}

	segments, err := builder.ByCutPoints(cutPoints)
	if err != nil {
		log.Fatalf("Error building segments: %v", err)
	}
	printSegments(segments, builder.TotalKm())
}

func buildFromPolyline(encoded string) *segment.Builder {
	route, err := polyline.DecodeFlexible(encoded)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}
	index, err := geo.NewDistanceIndex(route)
	if err != nil {
		log.Fatalf("Error building distance index: %v", err)
	}
	return segment.NewBuilder(index, "cli")
}

func printSegments(segments []segment.Segment, totalKm float64) {
	fmt.Printf("Route length: %.3f km, %d segments:\n", totalKm, len(segments))

	sum := 0.0
	for _, s := range segments {
		sum += s.DistanceKm
		fmt.Printf("  %2d. %-12s %8.3f km (%d geometry points)\n",
			s.Order, s.Name, s.DistanceKm, len(s.Geometry))
	}
	fmt.Printf("Sum of segment lengths: %.3f km\n", sum)
}

func printUsage() {
	fmt.Println("Usage: test-segmenter <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  by-distance  Partition a route into fixed-length segments")
	fmt.Println("  by-cuts      Partition a route at explicit cut distances")
	fmt.Println("  help         Show this message")
}
