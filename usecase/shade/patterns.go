package shade

import (
	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/extract"
)

var (
	gisPattern = extract.MustCompile(`^"(?P<blurb>.*)","(?P<misc>.*)","(?P<geo>.*)","(?P<kind>.*)"$`, nil)

	treePattern = extract.MustCompile(
		`^\s*Private:\s+(?P<priv>\S+)\s+Tree ID:\s+(?P<tree_id>\d+)\s+.*Situs Number:\s+(?P<situs>\d+)\s+Tree Site:\s+(?P<tree_site>\d+)\s+Species:\s+(?P<raw_species>\S.*\S)\s+Source.*$`,
		map[string]canopy.Type{
			"tree_id":   canopy.TypeInt,
			"situs":     canopy.TypeInt,
			"tree_site": canopy.TypeInt,
		})

	speciesPattern = extract.MustCompile(`^(?P<scrub_species>[\w\s]+).*$`, nil)

	pointPattern = extract.MustCompile(
		`^\s*(?P<tree_lng>\S+),(?P<tree_lat>\S+),(?P<tree_alt>\S+)\s*$`,
		map[string]canopy.Type{
			"tree_lng": canopy.TypeFloat,
			"tree_lat": canopy.TypeFloat,
			"tree_alt": canopy.TypeFloat,
		})

	roadPattern = extract.MustCompile(
		`^\s*Sequence:.*\s+Year Constructed:\s+(?P<year_construct>\d+)\s+Traffic Count:\s+(?P<traffic_count>\d+)\s+`+
			`Traffic Index:\s+(?P<traffic_index>\w.*\w)\s+Traffic Class:\s+(?P<traffic_class>\w.*\w)\s+Traffic Date.*\s+`+
			`Paving Length:\s+(?P<paving_length>\d+)\s+Paving Width:\s+(?P<paving_width>\d+)\s+Paving Area:\s+(?P<paving_area>\d+)\s+`+
			`Surface Type:\s+(?P<surface_type>\w.*\w)\s+Surface Thickness.*\s+Bike Lane:\s+(?P<bike_lane>\w+)\s+`+
			`Bus Route:\s+(?P<bus_route>\w+)\s+Truck Route:\s+(?P<truck_route>\w+)\s+Remediation.*$`,
		map[string]canopy.Type{
			"year_construct": canopy.TypeInt,
			"traffic_count":  canopy.TypeInt,
			"paving_length":  canopy.TypeInt,
			"paving_width":   canopy.TypeInt,
			"paving_area":    canopy.TypeInt,
		})

	parkPattern = extract.MustCompile(`^\s*Community Type:\s+Park.*$`, nil)

	gpsPattern = extract.MustCompile(
		`^\s*(?P<gps_lat>[-+]?\d+(?:\.\d+)?)\s*,\s*(?P<gps_lng>[-+]?\d+(?:\.\d+)?)\s*(?:,(?P<gps_info>.*))?$`,
		map[string]canopy.Type{
			"gps_lat": canopy.TypeFloat,
			"gps_lng": canopy.TypeFloat,
		})
)

// Schemas of the datasets the job reads and writes.
var (
	ParsedSchema = canopy.Strings("blurb", "misc", "geo", "kind")

	MetaTreeSchema = canopy.Schema{
		{Name: "species"},
		{Name: "wikipedia"},
		{Name: "calflora"},
		{Name: "min_height", Type: canopy.TypeFloat},
		{Name: "max_height", Type: canopy.TypeFloat},
	}

	MetaRoadSchema = canopy.Schema{
		{Name: "pavement_type"},
		{Name: "albedo_new", Type: canopy.TypeFloat},
		{Name: "albedo_worn", Type: canopy.TypeFloat},
	}

	TreeSchema = canopy.Schema{
		{Name: "blurb"},
		{Name: "geo"},
		{Name: "priv"},
		{Name: "tree_id", Type: canopy.TypeInt},
		{Name: "situs", Type: canopy.TypeInt},
		{Name: "tree_site", Type: canopy.TypeInt},
		{Name: "species"},
		{Name: "wikipedia"},
		{Name: "calflora"},
		{Name: "min_height", Type: canopy.TypeFloat},
		{Name: "max_height", Type: canopy.TypeFloat},
	}

	RoadSchema = canopy.Schema{
		{Name: "blurb"},
		{Name: "geo"},
		{Name: "year_construct", Type: canopy.TypeInt},
		{Name: "traffic_count", Type: canopy.TypeInt},
		{Name: "traffic_index"},
		{Name: "traffic_class"},
		{Name: "paving_length", Type: canopy.TypeInt},
		{Name: "paving_width", Type: canopy.TypeInt},
		{Name: "paving_area", Type: canopy.TypeInt},
		{Name: "surface_type"},
		{Name: "bike_lane"},
		{Name: "bus_route"},
		{Name: "truck_route"},
		{Name: "albedo_new", Type: canopy.TypeFloat},
		{Name: "albedo_worn", Type: canopy.TypeFloat},
	}

	ParkSchema = ParsedSchema

	ShadeSchema = canopy.Schema{
		{Name: "road_name"},
		{Name: "road_geohash"},
		{Name: "lat_mid", Type: canopy.TypeFloat},
		{Name: "lng_mid", Type: canopy.TypeFloat},
		{Name: "albedo", Type: canopy.TypeFloat},
		{Name: "traffic_count", Type: canopy.TypeInt},
		{Name: "traffic_class"},
		{Name: "surface_type"},
		{Name: "tree_name"},
		{Name: "tree_id", Type: canopy.TypeInt},
		{Name: "species"},
		{Name: "avg_height", Type: canopy.TypeFloat},
		{Name: "tree_dist", Type: canopy.TypeFloat},
	}

	RecoSchema = canopy.Schema{
		{Name: "gps_lat", Type: canopy.TypeFloat},
		{Name: "gps_lng", Type: canopy.TypeFloat},
		{Name: "gps_geohash"},
		{Name: "road_name"},
		{Name: "lat_mid", Type: canopy.TypeFloat},
		{Name: "lng_mid", Type: canopy.TypeFloat},
		{Name: "albedo", Type: canopy.TypeFloat},
		{Name: "tree_name"},
		{Name: "species"},
		{Name: "avg_height", Type: canopy.TypeFloat},
		{Name: "tree_dist", Type: canopy.TypeFloat},
	}
)
