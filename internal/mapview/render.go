package mapview

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

// Leaflet assets loaded by every rendered fragment.
const (
	LeafletCSS = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
	LeafletJS  = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
)

// DataScriptID returns the id of the JSON script element holding m.
func (m *Map) DataScriptID() string {
	return m.ID + "_data"
}

// Render returns a component that writes the map container, its data as a
// JSON script and the Leaflet bootstrap.
func Render(m *Map) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<link rel="stylesheet" href="%s"><script src="%s"></script><div class="atlas-map" id="%s"></div>`,
			LeafletCSS, LeafletJS, templ.EscapeString(m.ID)); err != nil {
			return err
		}
		if err := templ.JSONScript(m.DataScriptID(), m).Render(ctx, w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "<script>(%s)(%q);</script>", bootstrapJS, m.DataScriptID())
		return err
	})
}

// Handler serves the bare fragment, mostly useful for embedding.
func Handler(m *Map) http.Handler {
	return templ.Handler(Render(m))
}

// bootstrapJS draws a map from the JSON written by Render.
const bootstrapJS = `function (dataId) {
    var data = JSON.parse(document.getElementById(dataId).textContent);
    var map = L.map(data.id, {center: data.center, zoom: data.zoom});

    var baseLayers = {};
    data.base_layers.forEach(function (b) {
        var layer = L.tileLayer(b.url, {attribution: b.attribution});
        if (b.active) {
            layer.addTo(map);
        }
        baseLayers[b.name] = layer;
    });

    var overlays = {};
    data.overlays.forEach(function (o) {
        var layer = L.geoJSON(o.features, {
            style: function () { return o.style; },
            onEachFeature: function (feature, l) {
                var props = feature.properties || {};
                if (props._atlas_tooltip) {
                    l.bindTooltip(props._atlas_tooltip, {sticky: o.tooltip_sticky});
                }
                if (props._atlas_popup) {
                    l.bindPopup(props._atlas_popup, {maxWidth: o.popup_max_width});
                }
                l.on('mouseover', function () {
                    if (l.setStyle) { l.setStyle(o.highlight); }
                });
                l.on('mouseout', function () { layer.resetStyle(l); });
            }
        });
        if (o.visible) {
            layer.addTo(map);
        }
        overlays[o.name] = layer;
    });

    data.markers.forEach(function (m) {
        var marker = L.marker([m.lat, m.lon]);
        if (m.popup) { marker.bindPopup(m.popup); }
        if (m.tooltip) { marker.bindTooltip(m.tooltip); }
        marker.addTo(map);
    });

    if (data.layer_control) {
        L.control.layers(baseLayers, overlays).addTo(map);
    }
}`
