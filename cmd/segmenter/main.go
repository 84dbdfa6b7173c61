package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/prefab"

	"github.com/dpup/routereg/server/internal/cache"
	"github.com/dpup/routereg/server/internal/clients/google"
	"github.com/dpup/routereg/server/internal/clients/registry"
	"github.com/dpup/routereg/server/internal/clients/roadnetwork"
	"github.com/dpup/routereg/server/internal/config"
	"github.com/dpup/routereg/server/internal/lib/geo"
	"github.com/dpup/routereg/server/internal/lib/segment"
	"github.com/dpup/routereg/server/internal/services"
	"github.com/dpup/routereg/server/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	appConfig := loadConfig()
	service, sharedCache := newService(appConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Run(ctx)
	sharedCache.StartPeriodicCleanup(ctx, appConfig.Segmentation.CacheCleanupInterval)

	switch os.Args[1] {
	case "distance":
		handleDistance(ctx, service)
	case "cuts":
		handleCuts(ctx, service)
	case "intersections":
		handleIntersections(ctx, service)
	case "clear":
		handleClear(ctx, service)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads configuration using Prefab's config system.
// Values come from prefab.yaml and environment variables with PF__ prefix,
// falling back to built-in defaults.
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("google", &appConfig.Google); err != nil {
		log.Fatalf("Failed to unmarshal google section: %v", err)
	}
	if err := prefab.Config.Unmarshal("intersections", &appConfig.Intersections); err != nil {
		log.Fatalf("Failed to unmarshal intersections section: %v", err)
	}
	if err := prefab.Config.Unmarshal("registry", &appConfig.Registry); err != nil {
		log.Fatalf("Failed to unmarshal registry section: %v", err)
	}
	if err := prefab.Config.Unmarshal("segmentation", &appConfig.Segmentation); err != nil {
		log.Fatalf("Failed to unmarshal segmentation section: %v", err)
	}

	return appConfig
}

func newService(appConfig *config.Config) (*services.SegmentationService, *cache.Cache) {
	sharedCache := cache.NewCache()
	service := services.NewSegmentationService(
		google.NewClient(appConfig.Google.APIKey),
		roadnetwork.NewClient(appConfig.Intersections.APIKey, appConfig.Intersections.BaseURL),
		registry.NewClient(appConfig.Registry.APIKey, appConfig.Registry.BaseURL),
		sharedCache,
		&appConfig.Segmentation,
	)
	return service, sharedCache
}

func handleDistance(ctx context.Context, service *services.SegmentationService) {
	fs := flag.NewFlagSet("distance", flag.ExitOnError)
	routeID := fs.String("route", "", "Route ID")
	encoded := fs.String("polyline", "", "Encoded route polyline")
	distanceKm := fs.Float64("distance", 0, "Segment interval in kilometers")
	apply := fs.Bool("apply", false, "Persist the result to the registry")

	fs.Parse(os.Args[2:])
	requireRoute(*routeID, *encoded)
	if *distanceKm <= 0 {
		log.Fatal("--distance must be positive")
	}

	route := session.Route{ID: *routeID, EncodedPolyline: *encoded}
	if err := service.StartSession(route, segment.ModeDistance); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	if err := service.Manager().SetDistance(*distanceKm); err != nil {
		log.Fatalf("Failed to set distance: %v", err)
	}

	state := waitForPreview(service)
	printState(state)
	maybeApply(ctx, service, *apply)
}

func handleCuts(ctx context.Context, service *services.SegmentationService) {
	fs := flag.NewFlagSet("cuts", flag.ExitOnError)
	routeID := fs.String("route", "", "Route ID")
	encoded := fs.String("polyline", "", "Encoded route polyline")
	cuts := fs.String("at", "", "Comma-separated cut coordinates, lat:lng pairs, e.g. 38.59:-120.7,38.61:-120.6")
	apply := fs.Bool("apply", false, "Persist the result to the registry")

	fs.Parse(os.Args[2:])
	requireRoute(*routeID, *encoded)

	route := session.Route{ID: *routeID, EncodedPolyline: *encoded}
	if err := service.StartSession(route, segment.ModeManual); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	for _, pair := range strings.Split(*cuts, ",") {
		point, err := parseLatLng(pair)
		if err != nil {
			log.Fatalf("Invalid cut %q: %v", pair, err)
		}
		if _, err := service.Manager().AddCutPoint(point); err != nil {
			log.Fatalf("Failed to add cut point %q: %v", pair, err)
		}
	}

	printState(service.Manager().Current())
	maybeApply(ctx, service, *apply)
}

func handleIntersections(ctx context.Context, service *services.SegmentationService) {
	fs := flag.NewFlagSet("intersections", flag.ExitOnError)
	routeID := fs.String("route", "", "Route ID")
	encoded := fs.String("polyline", "", "Encoded route polyline")
	apply := fs.Bool("apply", false, "Persist the result to the registry")

	fs.Parse(os.Args[2:])
	requireRoute(*routeID, *encoded)

	route := session.Route{ID: *routeID, EncodedPolyline: *encoded}
	if err := service.StartSession(route, segment.ModeIntersections); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	if err := service.LoadIntersections(ctx); err != nil {
		log.Fatalf("Failed to load intersections: %v", err)
	}

	printState(service.Manager().Current())
	maybeApply(ctx, service, *apply)
}

func handleClear(ctx context.Context, service *services.SegmentationService) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	routeID := fs.String("route", "", "Route ID")

	fs.Parse(os.Args[2:])
	if *routeID == "" {
		log.Fatal("--route is required")
	}

	if err := service.Clear(ctx, *routeID); err != nil {
		log.Fatalf("Failed to clear segmentation: %v", err)
	}
	fmt.Printf("Cleared segmentation for route %s\n", *routeID)
}

func requireRoute(routeID, encoded string) {
	if routeID == "" || encoded == "" {
		log.Fatal("--route and --polyline are required")
	}
}

func parseLatLng(pair string) (geo.Point, error) {
	parts := strings.Split(strings.TrimSpace(pair), ":")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("expected lat:lng")
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return geo.Point{}, err
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{Latitude: lat, Longitude: lng}, nil
}

// waitForPreview polls until the debounced background computation settles.
func waitForPreview(service *services.SegmentationService) session.State {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		state := service.Manager().Current()
		if !state.IsCalculating {
			return state
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Fatal("Timed out waiting for segmentation")
	return session.State{}
}

func printState(state session.State) {
	if state.Err != nil {
		log.Fatalf("Segmentation failed: %v", state.Err)
	}

	fmt.Printf("Route %s: %.3f km, %d segments\n",
		state.TargetRoute.ID, state.TotalKm, len(state.PreviewSegments))
	for _, s := range state.PreviewSegments {
		fmt.Printf("  %2d. %-12s %8.3f km\n", s.Order, s.Name, s.DistanceKm)
	}
}

func maybeApply(ctx context.Context, service *services.SegmentationService, apply bool) {
	if !apply {
		return
	}
	result, err := service.Apply(ctx)
	if err != nil {
		log.Fatalf("Failed to apply segmentation: %v", err)
	}
	fmt.Printf("Applied %d segments to route %s\n", result.SegmentsSaved, result.RouteID)
}

func printUsage() {
	fmt.Println("Usage: segmenter <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  distance       Segment a route into fixed-length intervals")
	fmt.Println("  cuts           Segment a route at manual cut coordinates")
	fmt.Println("  intersections  Segment a route at fetched road intersections")
	fmt.Println("  clear          Remove a route's stored segmentation")
	fmt.Println("  help           Show this message")
}
