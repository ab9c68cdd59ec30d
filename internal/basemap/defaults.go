package basemap

// Built-in basemap names.
const (
	EsriSatellite = "Esri Satellite"
	OpenStreetMap = "OpenStreetMap"
	OpenTopoMap   = "OpenTopoMap"
)

var defaultNames = []string{EsriSatellite, OpenStreetMap, OpenTopoMap}

var defaultURLs = map[string]string{
	EsriSatellite: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
	OpenStreetMap: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
	OpenTopoMap:   "https://tile.opentopomap.org/{z}/{x}/{y}.png",
}

var defaultAttributions = map[string]string{
	EsriSatellite: "Tiles &copy; Esri &mdash; Source: Esri, i-cubed, USDA, USGS, AEX, GeoEye, " +
		"Getmapping, Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community",
	OpenStreetMap: "&copy; <a href='https://www.openstreetmap.org/copyright'>OpenStreetMap</a> contributors",
	OpenTopoMap: "Map data: &copy; <a href='https://www.openstreetmap.org/copyright'>" +
		"OpenStreetMap</a> contributors, <a href='http://viewfinderpanorama.org'>" +
		"SRTM</a> | Map style: &copy; <a href='https://opentopomap.org'>OpenTopoMap</a> " +
		"(<a href='https://creativecommons.org/licenses/by-sa/3.0/'>CC-BY-SA</a>)",
}

// DefaultView centers the continental United States.
var DefaultView = View{Lat: 39.8283, Lon: -98.5795, Zoom: 4, Basemap: OpenStreetMap}

// SampleMarkers returns the markers used when a catalog does not list any.
func SampleMarkers() []Marker {
	return []Marker{
		{Lat: 39.8283, Lon: -98.5795, Popup: "Center of USA", Tooltip: "Click for more info"},
		{Lat: 40.7128, Lon: -74.0060, Popup: "New York City", Tooltip: "NYC"},
		{Lat: 34.0522, Lon: -118.2437, Popup: "Los Angeles", Tooltip: "LA"},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultNames, defaultURLs, defaultAttributions, DefaultView, SampleMarkers())
	if err != nil {
		panic("basemap: invalid built-in catalog: " + err.Error())
	}
	return c
}
